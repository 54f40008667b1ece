//go:build cgo_sqlite

// CGO SQLite driver using mattn/go-sqlite3.
//
// Build with: go build -tags cgo_sqlite
// Requires: CGO_ENABLED=1
package sqlite

import (
	"fmt"

	_ "github.com/mattn/go-sqlite3" // CGO SQLite driver
)

const (
	driverName    = "sqlite3"
	driverType    = "cgo"
	driverPackage = "github.com/mattn/go-sqlite3"
)

// dsn uses the mattn underscore query parameters.
func dsn(path string) string {
	return fmt.Sprintf("file:%s?_busy_timeout=%d&_foreign_keys=on", path, BusyTimeout.Milliseconds())
}
