package persist

import (
	"context"
	"fmt"

	"github.com/holdfast/server/internal/config"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// ledgerMaxConns covers the drain goroutine, migrations and the shutdown
// count. The ledger never needs more.
const ledgerMaxConns = 2

// DB is the kill ledger's connection pool. The simulation only appends to
// it, so the pool stays small and commits are asynchronous: a crash may lose
// the last flush, which the writer already tolerates by dropping rows.
type DB struct {
	Pool *pgxpool.Pool
	log  *zap.Logger
}

// NewDB connects and pings within cfg.WriteTimeout.
func NewDB(ctx context.Context, cfg config.DatabaseConfig, log *zap.Logger) (*DB, error) {
	poolCfg, err := ledgerPoolConfig(cfg)
	if err != nil {
		return nil, err
	}
	poolCfg.AfterConnect = func(_ context.Context, conn *pgx.Conn) error {
		log.Debug("ledger connection opened", zap.Uint32("pid", conn.PgConn().PID()))
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to ledger db: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.WriteTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping ledger db: %w", err)
	}

	log.Info("ledger database connected",
		zap.String("host", poolCfg.ConnConfig.Host),
		zap.String("database", poolCfg.ConnConfig.Database),
		zap.Int32("max_conns", poolCfg.MaxConns))
	return &DB{Pool: pool, log: log}, nil
}

// ledgerPoolConfig parses the DSN and sizes the pool for append-only use.
// An application_name in the DSN wins over the default.
func ledgerPoolConfig(cfg config.DatabaseConfig) (*pgxpool.Config, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	maxConns := min(max(cfg.MaxOpenConns, 1), ledgerMaxConns)
	poolCfg.MaxConns = int32(maxConns)
	poolCfg.MinConns = int32(min(max(cfg.MaxIdleConns, 0), maxConns))
	poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime

	params := poolCfg.ConnConfig.RuntimeParams
	if params["application_name"] == "" {
		params["application_name"] = "holdfast-ledger"
	}
	params["synchronous_commit"] = "off"
	return poolCfg, nil
}

func (db *DB) Close() {
	db.Pool.Close()
}
