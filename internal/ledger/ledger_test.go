package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/FocuswithJustin/teijson/core/errors"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestRecordAndLookup(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e := Entry{
		InputPath:    "/in/a.tei.xml",
		InputBLAKE3:  "b3",
		InputSHA256:  "s2",
		OutputPath:   "/out/a.json",
		OutputSHA256: "o2",
		RunID:        "run-1",
		Documents:    1,
		Paragraphs:   12,
		ConvertedAt:  at,
	}
	if err := l.Record(ctx, e); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	got, err := l.Lookup(ctx, "/in/a.tei.xml")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if !got.ConvertedAt.Equal(at) {
		t.Errorf("ConvertedAt = %v, want %v", got.ConvertedAt, at)
	}
	got.ConvertedAt = at
	if got != e {
		t.Errorf("Lookup() = %+v, want %+v", got, e)
	}

	if _, err := l.Lookup(ctx, "/in/missing.xml"); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("Lookup(missing) error = %v, want ErrNotFound", err)
	}
}

func TestRecordReplaces(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	first := Entry{InputPath: "a.xml", InputBLAKE3: "old", OutputPath: "a.json", RunID: "r1"}
	second := Entry{InputPath: "a.xml", InputBLAKE3: "new", OutputPath: "a.json", RunID: "r2", Paragraphs: 3}
	if err := l.Record(ctx, first); err != nil {
		t.Fatal(err)
	}
	if err := l.Record(ctx, second); err != nil {
		t.Fatal(err)
	}

	entries, err := l.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("List() returned %d entries, want 1", len(entries))
	}
	if entries[0].InputBLAKE3 != "new" || entries[0].RunID != "r2" || entries[0].Paragraphs != 3 {
		t.Errorf("entry = %+v", entries[0])
	}
	if entries[0].ConvertedAt.IsZero() {
		t.Error("ConvertedAt should default to now")
	}
}

func TestUnchanged(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	if err := l.Record(ctx, Entry{InputPath: "a.xml", InputBLAKE3: "h1", OutputPath: "out/a.json"}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		input  string
		hash   string
		output string
		want   bool
	}{
		{"same content and output", "a.xml", "h1", "out/a.json", true},
		{"content changed", "a.xml", "h2", "out/a.json", false},
		{"output moved", "a.xml", "h1", "other/a.json", false},
		{"never converted", "b.xml", "h1", "out/b.json", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := l.Unchanged(ctx, tt.input, tt.hash, tt.output)
			if err != nil {
				t.Fatalf("Unchanged() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Unchanged() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestListOrder(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, name := range []string{"a.xml", "b.xml", "c.xml"} {
		e := Entry{InputPath: name, OutputPath: name + ".json", ConvertedAt: base.Add(time.Duration(i) * time.Hour)}
		if err := l.Record(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := l.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	want := []string{"c.xml", "b.xml", "a.xml"}
	if len(entries) != len(want) {
		t.Fatalf("List() returned %d entries, want %d", len(entries), len(want))
	}
	for i, name := range want {
		if entries[i].InputPath != name {
			t.Errorf("entries[%d] = %s, want %s", i, entries[i].InputPath, name)
		}
	}
}

func TestReopenKeepsEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	l, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := l.Record(context.Background(), Entry{InputPath: "a.xml", OutputPath: "a.json"}); err != nil {
		t.Fatal(err)
	}
	l.Close()

	l, err = Open(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer l.Close()
	if l.Path() != path {
		t.Errorf("Path() = %s, want %s", l.Path(), path)
	}
	if _, err := l.Lookup(context.Background(), "a.xml"); err != nil {
		t.Errorf("entry lost after reopen: %v", err)
	}
}
