package connector

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
)

// ConnectionConfig holds database connection parameters.
type ConnectionConfig struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// Unlock releases a per-key lock. Dialects whose lock is scoped to the
// transaction return a no-op; it must still be called after commit/rollback.
type Unlock func()

// Dialect is the interface each supported relational store implements. It
// covers what differs between engines: connecting, bootstrapping the two
// tables, and acquiring an exclusive per-key lock inside a transaction.
type Dialect interface {
	// Open connects to the database and applies pool settings.
	Open(cfg ConnectionConfig) (*sqlx.DB, error)

	// Schema returns idempotent DDL statements creating api_keys and
	// budget_usage.
	Schema() []string

	// LockKey blocks until the caller holds the exclusive lock for keyID.
	// The lock lasts until tx ends; different keys never contend.
	LockKey(ctx context.Context, tx *sqlx.Tx, keyID string) (Unlock, error)

	// IsDuplicateObject reports whether a bootstrap error only means the
	// object already exists.
	IsDuplicateObject(err error) bool

	// DriverName returns the dialect identifier (postgres, mysql, ...).
	DriverName() string
}

// LockID maps a key id onto the signed 64-bit lock space used by advisory
// lock primitives.
func LockID(keyID string) int64 {
	return int64(xxhash.Sum64String(keyID))
}

// Open connects with sqlx under the given database/sql driver name and
// applies the pool settings from cfg.
func Open(sqlDriver string, cfg ConnectionConfig) (*sqlx.DB, error) {
	db, err := sqlx.Connect(sqlDriver, SanitizeDSN(cfg.Driver, cfg.DSN))
	if err != nil {
		return nil, fmt.Errorf("%s connect: %w", cfg.Driver, err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
	return db, nil
}

// SanitizeDSN ensures that URL-style DSNs (postgres://, sqlserver://) have
// their userinfo (especially the password) properly percent-encoded. Raw
// passwords containing @, #, %, or other URL-special characters otherwise
// make the URL parser mis-split the authority component.
//
// MySQL DSNs are normalized to use the tcp() wrapper required by go-sql-driver.
func SanitizeDSN(driver, dsn string) string {
	switch driver {
	case "postgres", "mssql":
		return sanitizeURLDSN(dsn)
	case "mysql":
		return sanitizeMySQLDSN(dsn)
	default:
		return dsn
	}
}

// RedactDSN hides the password of a URL-style or MySQL DSN for logging.
func RedactDSN(driver, dsn string) string {
	switch driver {
	case "mysql":
		cfg, err := mysqldriver.ParseDSN(sanitizeMySQLDSN(dsn))
		if err != nil {
			return "(unparseable dsn)"
		}
		if cfg.Passwd != "" {
			cfg.Passwd = "xxxxx"
		}
		return cfg.FormatDSN()
	case "postgres", "mssql":
		u, err := url.Parse(sanitizeURLDSN(dsn))
		if err != nil {
			return "(unparseable dsn)"
		}
		return u.Redacted()
	default:
		return dsn
	}
}

// mysqlBareHostPort matches "user:pass@host:port/db" (no tcp() wrapper).
var mysqlBareHostPort = regexp.MustCompile(`^(.+)@([^(@]+:\d+)(/.*)?$`)

// sanitizeMySQLDSN normalizes a MySQL DSN so that go-sql-driver/mysql can
// parse it. The driver requires user:pass@tcp(host:port)/dbname; the common
// forms user:pass@host:port/db and user:pass@(host:port)/db are rewritten.
// parseTime is always forced on so DATETIME columns scan into time.Time.
func sanitizeMySQLDSN(dsn string) string {
	candidates := []string{dsn}
	if idx := strings.LastIndex(dsn, "@("); idx >= 0 {
		candidates = append(candidates, dsn[:idx]+"@tcp"+dsn[idx+1:])
	}
	if m := mysqlBareHostPort.FindStringSubmatch(dsn); m != nil {
		candidates = append(candidates, m[1]+"@tcp("+m[2]+")"+m[3])
	}

	for _, c := range candidates {
		cfg, err := mysqldriver.ParseDSN(c)
		if err != nil || (cfg.Net != "tcp" && cfg.Net != "unix") {
			continue
		}
		cfg.ParseTime = true
		cfg.Loc = time.UTC
		return cfg.FormatDSN()
	}

	// Nothing worked; let the connect call report a clear error.
	return dsn
}

// sanitizeURLDSN parses a DSN that begins with a scheme (e.g.
// postgres://user:p@ss#word@host/db) and re-encodes the userinfo so the
// URL library can parse it unambiguously.
func sanitizeURLDSN(dsn string) string {
	schemeEnd := strings.Index(dsn, "://")
	if schemeEnd < 0 {
		return dsn // key=value DSN, nothing to do
	}

	scheme := dsn[:schemeEnd]
	rest := dsn[schemeEnd+3:]

	query := ""
	if qi := strings.IndexByte(rest, '?'); qi >= 0 {
		query = rest[qi:]
		rest = rest[:qi]
	}

	// The LAST '@' separates userinfo from host+path.
	atIdx := strings.LastIndex(rest, "@")
	if atIdx < 0 {
		return dsn
	}

	userinfo := rest[:atIdx]
	hostpath := rest[atIdx+1:]

	user := userinfo
	pass := ""
	hasPass := false
	if ci := strings.IndexByte(userinfo, ':'); ci >= 0 {
		user = userinfo[:ci]
		pass = userinfo[ci+1:]
		hasPass = true
	}

	// Undo any existing encoding first so already-escaped input is stable.
	if u, err := url.PathUnescape(user); err == nil {
		user = u
	}
	if p, err := url.PathUnescape(pass); err == nil {
		pass = p
	}

	info := url.User(user)
	if hasPass {
		info = url.UserPassword(user, pass)
	}
	return scheme + "://" + info.String() + "@" + hostpath + query
}
