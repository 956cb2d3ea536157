package sqlx

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/pioneerstudio/patternshop/app"
	"github.com/spf13/viper"
)

// Querier is the statement surface shared by a datasource and its transactions.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Conn is a Querier that knows which SQL dialect it speaks.
type Conn interface {
	Querier
	Dialect() Dialect
}

// DB is the minimal database contract used by the application.
// It can be backed by *sql.DB or a thin wrapper that adds SQL logging.
type DB interface {
	Conn
	BeginTx(ctx context.Context, opts *sql.TxOptions) (Tx, error)
	PingContext(ctx context.Context) error
	Close() error
}

// Tx is a transaction bound Conn.
type Tx interface {
	Conn
	Commit() error
	Rollback() error
}

// stdDB adapts *sql.DB to the DB interface.
type stdDB struct {
	*sql.DB
	dialect Dialect
}

func (d stdDB) Dialect() Dialect { return d.dialect }

func (d stdDB) BeginTx(ctx context.Context, opts *sql.TxOptions) (Tx, error) {
	tx, err := d.DB.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return stdTx{Tx: tx, dialect: d.dialect}, nil
}

type stdTx struct {
	*sql.Tx
	dialect Dialect
}

func (t stdTx) Dialect() Dialect { return t.dialect }

// Wrap adapts an opened *sql.DB.
func Wrap(raw *sql.DB, dialect Dialect) DB {
	return stdDB{DB: raw, dialect: dialect}
}

// loggingDB logs every statement at debug level.
type loggingDB struct {
	inner  DB
	logger *slog.Logger
}

type loggingTx struct {
	inner  Tx
	logger *slog.Logger
}

func logStatement(ctx context.Context, l *slog.Logger, kind, query string, args []any, start time.Time, err error) {
	l.DebugContext(ctx, "sql "+kind, "sql", query, "args", args, "dur", time.Since(start), "err", err)
}

func (d loggingDB) Dialect() Dialect { return d.inner.Dialect() }

func (d loggingDB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	start := time.Now()
	res, err := d.inner.ExecContext(ctx, query, args...)
	logStatement(ctx, d.logger, "exec", query, args, start, err)
	return res, err
}

func (d loggingDB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	start := time.Now()
	rows, err := d.inner.QueryContext(ctx, query, args...)
	logStatement(ctx, d.logger, "query", query, args, start, err)
	return rows, err
}

func (d loggingDB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	start := time.Now()
	row := d.inner.QueryRowContext(ctx, query, args...)
	logStatement(ctx, d.logger, "query", query, args, start, row.Err())
	return row
}

func (d loggingDB) BeginTx(ctx context.Context, opts *sql.TxOptions) (Tx, error) {
	tx, err := d.inner.BeginTx(ctx, opts)
	d.logger.DebugContext(ctx, "sql begin", "err", err)
	if err != nil {
		return nil, err
	}
	return loggingTx{inner: tx, logger: d.logger}, nil
}

func (d loggingDB) PingContext(ctx context.Context) error { return d.inner.PingContext(ctx) }

func (d loggingDB) Close() error { return d.inner.Close() }

func (t loggingTx) Dialect() Dialect { return t.inner.Dialect() }

func (t loggingTx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	start := time.Now()
	res, err := t.inner.ExecContext(ctx, query, args...)
	logStatement(ctx, t.logger, "exec", query, args, start, err)
	return res, err
}

func (t loggingTx) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	start := time.Now()
	rows, err := t.inner.QueryContext(ctx, query, args...)
	logStatement(ctx, t.logger, "query", query, args, start, err)
	return rows, err
}

func (t loggingTx) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	start := time.Now()
	row := t.inner.QueryRowContext(ctx, query, args...)
	logStatement(ctx, t.logger, "query", query, args, start, row.Err())
	return row
}

func (t loggingTx) Commit() error {
	err := t.inner.Commit()
	t.logger.Debug("sql commit", "err", err)
	return err
}

func (t loggingTx) Rollback() error {
	err := t.inner.Rollback()
	t.logger.Debug("sql rollback", "err", err)
	return err
}

// WithSQLLogger wraps db with a SQL logger if logger is not nil.
func WithSQLLogger(db DB, logger *slog.Logger) DB {
	if logger == nil {
		return db
	}
	return loggingDB{inner: db, logger: logger}
}

var (
	defaultDS  DB
	dsRegistry = map[string]DB{}
	dsMu       sync.RWMutex

	initOnce sync.Once
	initErr  error

	// sqlLogger, when set, enables SQL logging for all datasources opened afterwards.
	sqlLogger *slog.Logger
)

// SetSQLLogger enables SQL logging for datasources registered after this call.
func SetSQLLogger(l *slog.Logger) {
	sqlLogger = l
}

const (
	UserKey       = "${user}"
	PasswordKey   = "${password}"
	HostKey       = "${host}"
	defaultDSName = "default"
)

// DataSource is one entry under `datasource.<name>` in application.yml.
type DataSource struct {
	Driver          string        `mapstructure:"driver" yaml:"driver"`
	User            string        `mapstructure:"user" yaml:"user"`
	Password        string        `mapstructure:"password" yaml:"password"`
	Host            string        `mapstructure:"host" yaml:"host"`
	URL             string        `mapstructure:"url" yaml:"url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" yaml:"conn_max_lifetime"`
}

// DSNChecked returns the final connection string and validates placeholder usage.
//
// Go drivers don't share a DSN format, so `url` is required and driver specific. A placeholder
// whose field is empty is an error, so a misconfiguration never connects with blank credentials.
func (ds DataSource) DSNChecked() (string, error) {
	if strings.TrimSpace(ds.URL) == "" {
		return "", fmt.Errorf("dsn requires url")
	}
	if strings.Contains(ds.URL, UserKey) && ds.User == "" {
		return "", fmt.Errorf("dsn requires user")
	}
	if strings.Contains(ds.URL, PasswordKey) && ds.Password == "" {
		return "", fmt.Errorf("dsn requires password")
	}
	if strings.Contains(ds.URL, HostKey) && ds.Host == "" {
		return "", fmt.Errorf("dsn requires host")
	}
	return ds.DSN(), nil
}

// DSN substitutes ${user}, ${password} and ${host} in the url.
func (ds DataSource) DSN() string {
	dsn := strings.ReplaceAll(ds.URL, UserKey, ds.User)
	dsn = strings.ReplaceAll(dsn, PasswordKey, ds.Password)
	return strings.ReplaceAll(dsn, HostKey, ds.Host)
}

// Open connects to ds and pings it.
func Open(ctx context.Context, ds DataSource) (DB, error) {
	dialect, err := DialectOf(ds.Driver)
	if err != nil {
		return nil, err
	}
	dsn, err := ds.DSNChecked()
	if err != nil {
		return nil, err
	}
	if dialect == MySQL {
		// rows carry TIMESTAMP columns scanned into time.Time
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return nil, fmt.Errorf("parse mysql dsn: %w", err)
		}
		cfg.ParseTime = true
		dsn = cfg.FormatDSN()
	}
	raw, err := sql.Open(ds.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", ds.Driver, err)
	}
	if dialect == SQLite {
		// a single connection keeps in-memory databases shared and serialises writers
		raw.SetMaxOpenConns(1)
	} else if ds.MaxOpenConns > 0 {
		raw.SetMaxOpenConns(ds.MaxOpenConns)
	}
	if ds.MaxIdleConns > 0 {
		raw.SetMaxIdleConns(ds.MaxIdleConns)
	}
	if ds.ConnMaxLifetime > 0 {
		raw.SetConnMaxLifetime(ds.ConnMaxLifetime)
	}
	if err := raw.PingContext(ctx); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("ping %s: %w", ds.Driver, err)
	}
	return WithSQLLogger(Wrap(raw, dialect), sqlLogger), nil
}

// Register opens ds and registers it under name. An empty name means the default datasource.
func Register(ctx context.Context, name string, ds DataSource) (DB, error) {
	if name == "" {
		name = defaultDSName
	}
	if ds.Driver == "" {
		return nil, fmt.Errorf("driver is required to register datasource %q", name)
	}
	db, err := Open(ctx, ds)
	if err != nil {
		return nil, fmt.Errorf("register datasource %q: %w", name, err)
	}
	dsMu.Lock()
	defer dsMu.Unlock()
	dsRegistry[name] = db
	if name == defaultDSName && defaultDS == nil {
		defaultDS = db
	}
	return db, nil
}

func initDataSources() error {
	initOnce.Do(func() {
		res := app.Config()
		if res.IsError() {
			initErr = res.Error()
			return
		}
		cfg := res.MustGet()
		for name, val := range cfg.GetStringMap("datasource") {
			child := viper.New()
			m, ok := val.(map[string]any)
			if !ok {
				initErr = fmt.Errorf("datasource %s: expected a map", name)
				return
			}
			if err := child.MergeConfigMap(m); err != nil {
				initErr = fmt.Errorf("merge datasource %s: %w", name, err)
				return
			}
			var ds DataSource
			if err := child.Unmarshal(&ds); err != nil {
				initErr = fmt.Errorf("unmarshal datasource %s: %w", name, err)
				return
			}
			if _, err := Register(context.Background(), name, ds); err != nil {
				initErr = err
				return
			}
		}
	})
	return initErr
}

// GetDS returns a registered datasource by name, opening configured datasources on first use.
func GetDS(name string) (DB, error) {
	if err := initDataSources(); err != nil {
		return nil, err
	}
	if name == "" {
		name = defaultDSName
	}
	dsMu.RLock()
	defer dsMu.RUnlock()
	db, ok := dsRegistry[name]
	if !ok {
		return nil, fmt.Errorf("datasource %q is not configured", name)
	}
	return db, nil
}

// DefaultDS returns the default datasource.
func DefaultDS() (DB, error) {
	return GetDS(defaultDSName)
}

// CloseDataSource closes and removes the named datasource from the registry.
func CloseDataSource(name string) error {
	if name == "" {
		name = defaultDSName
	}
	dsMu.Lock()
	defer dsMu.Unlock()
	db, ok := dsRegistry[name]
	if !ok {
		return nil
	}
	delete(dsRegistry, name)
	if db == defaultDS {
		defaultDS = nil
	}
	return db.Close()
}

// CloseAllDataSources closes every registered datasource and returns the first error.
func CloseAllDataSources() error {
	dsMu.Lock()
	defer dsMu.Unlock()
	var firstErr error
	for name, db := range dsRegistry {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(dsRegistry, name)
	}
	defaultDS = nil
	return firstErr
}
