package connector

import (
	"context"
	"strings"
	"testing"

	"github.com/jmoiron/sqlx"
)

// stubDialect implements Dialect without a database.
type stubDialect struct {
	name string
}

func (s *stubDialect) Open(_ ConnectionConfig) (*sqlx.DB, error) { return nil, nil }
func (s *stubDialect) Schema() []string                          { return nil }
func (s *stubDialect) LockKey(_ context.Context, _ *sqlx.Tx, _ string) (Unlock, error) {
	return func() {}, nil
}
func (s *stubDialect) IsDuplicateObject(_ error) bool { return false }
func (s *stubDialect) DriverName() string             { return s.name }

func stubs(names ...string) Dialects {
	d := Dialects{}
	for _, name := range names {
		d[name] = func() Dialect { return &stubDialect{name: name} }
	}
	return d
}

func TestDialectsLookup(t *testing.T) {
	d, err := stubs("postgres", "sqlite").Lookup("sqlite")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if d.DriverName() != "sqlite" {
		t.Errorf("DriverName() = %q, want sqlite", d.DriverName())
	}
}

func TestDialectsLookupUnsupported(t *testing.T) {
	_, err := stubs("sqlite", "mysql", "postgres").Lookup("oracle")
	if err == nil {
		t.Fatal("expected error for unsupported driver")
	}
	if !strings.Contains(err.Error(), `"oracle"`) || !strings.Contains(err.Error(), "mysql, postgres, sqlite") {
		t.Errorf("error should name the driver and the sorted alternatives: %v", err)
	}
}

func TestDialectsLookupIsFresh(t *testing.T) {
	d := stubs("sqlite")
	a, _ := d.Lookup("sqlite")
	b, _ := d.Lookup("sqlite")
	if a == b {
		t.Error("each lookup should build its own dialect")
	}
}
