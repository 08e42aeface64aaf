package di

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/goliatone/go-user-cache/pkg/config"
	"github.com/goliatone/go-user-cache/users"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"go.uber.org/zap"
)

// OpenDB opens a bun database for cfg.URL. The driver is chosen by URL
// scheme. The connection is not verified; callers ping it.
func OpenDB(cfg config.DatabaseConfig, logger *zap.Logger) (*bun.DB, error) {
	driver, err := cfg.DatabaseDriver()
	if err != nil {
		return nil, err
	}

	var db *bun.DB
	switch driver {
	case "postgres":
		sqldb, err := sql.Open("postgres", cfg.URL)
		if err != nil {
			return nil, users.Unavailable(err, "open postgres")
		}
		if cfg.MaxOpenConns > 0 {
			sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		db = bun.NewDB(sqldb, pgdialect.New())

	case "sqlite3":
		sqldb, err := sql.Open("sqlite3", sqliteDSN(cfg.URL))
		if err != nil {
			return nil, users.Unavailable(err, "open sqlite")
		}
		// sqlite serializes writers, and shared in-memory databases vanish
		// when their last connection closes
		sqldb.SetMaxOpenConns(1)
		sqldb.SetConnMaxLifetime(0)
		db = bun.NewDB(sqldb, sqlitedialect.New())

	default:
		return nil, errors.Newf("unsupported driver %q", driver)
	}

	if logger != nil && logger.Core().Enabled(zap.DebugLevel) {
		db.AddQueryHook(&queryLogger{logger: logger.Named("sql")})
	}
	return db, nil
}

func sqliteDSN(url string) string {
	for _, prefix := range []string{"sqlite3://", "sqlite://"} {
		if strings.HasPrefix(url, prefix) {
			return strings.TrimPrefix(url, prefix)
		}
	}
	return url
}

// queryLogger logs every statement at debug level.
type queryLogger struct {
	logger *zap.Logger
}

var _ bun.QueryHook = (*queryLogger)(nil)

func (h *queryLogger) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (h *queryLogger) AfterQuery(_ context.Context, event *bun.QueryEvent) {
	fields := []zap.Field{
		zap.String("operation", event.Operation()),
		zap.Duration("duration", time.Since(event.StartTime)),
		zap.String("query", event.Query),
	}
	if event.Err != nil && !errors.Is(event.Err, sql.ErrNoRows) {
		h.logger.Debug("query failed", append(fields, zap.Error(event.Err))...)
		return
	}
	h.logger.Debug("query", fields...)
}
