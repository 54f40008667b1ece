package api

// Config holds server configuration.
type Config struct {
	Port              int
	MaxBody           int64      // Largest accepted /convert body in bytes
	StoreDir          string     // Content-addressed result store
	DataDir           string     // Root for job input and output directories
	LedgerPath        string     // Optional conversion ledger for jobs
	Workers           int        // Parallel conversions per job (0 = GOMAXPROCS)
	CacheEntries      int        // Cached /convert responses (0 = disabled)
	CacheBytes        int64      // Summed corpus bytes the cache may hold (0 = unlimited)
	RateLimitRequests int        // Requests per minute (0 = disabled)
	RateLimitBurst    int        // Burst size
	Auth              AuthConfig // Authentication configuration
	TLS               TLSConfig  // TLS configuration
	AllowedOrigins    []string   // CORS and WebSocket allowed origins (empty = allow all)
}

// TLSConfig holds TLS/HTTPS configuration.
type TLSConfig struct {
	Enabled  bool   // Enable HTTPS
	CertFile string // Path to TLS certificate file
	KeyFile  string // Path to TLS private key file
}

// DefaultMaxBody caps /convert uploads when Config.MaxBody is zero.
const DefaultMaxBody = 64 << 20

// DefaultConfig returns a configuration listening on 8081 with the store and
// data directories under the working directory.
func DefaultConfig() Config {
	return Config{
		Port:     8081,
		MaxBody:      DefaultMaxBody,
		StoreDir:     "results",
		DataDir:      ".",
		CacheEntries: 256,
		CacheBytes:   64 << 20,
	}
}
