package config

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	txgate "github.com/x402-foundation/txgate"
	"github.com/x402-foundation/txgate/idempotency"
	"github.com/x402-foundation/txgate/mechanisms/evm"
)

// NewLogger builds the process logger.
func NewLogger(cfg LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}

// Store is an opened claim store together with its cleanup.
type Store struct {
	idempotency.Store
	close func() error
}

// Close releases the store's connections and background work.
func (s *Store) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// OpenStore opens the configured backend. For the memory backend a sweeper
// runs until ctx is done or the store is closed.
func OpenStore(ctx context.Context, cfg StoreConfig, logger *zap.Logger) (*Store, error) {
	switch cfg.Backend {
	case BackendMemory:
		store := idempotency.NewMemoryStore()
		ctx, cancel := context.WithCancel(ctx)
		if cfg.SweepInterval > 0 {
			go store.RunSweeper(ctx, cfg.SweepInterval)
		}
		return &Store{Store: store, close: func() error { cancel(); return nil }}, nil

	case BackendRedis:
		store, err := idempotency.NewRedisStoreFromURL(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		if err := store.Ping(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("%w: redis ping: %v", txgate.ErrStoreUnavailable, err)
		}
		return &Store{Store: store, close: store.Close}, nil

	case BackendSQL:
		return OpenSQLStore(mysql.Open(cfg.SQLDSN), logger)

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// OpenSQLStore opens a claim store on any gorm dialector.
func OpenSQLStore(dialector gorm.Dialector, logger *zap.Logger) (*Store, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: open database: %v", txgate.ErrStoreUnavailable, err)
	}
	return newSQLStore(db, logger)
}

// newSQLStore migrates the claims table on db. The connection pool is closed
// if the store cannot be created.
func newSQLStore(db *gorm.DB, logger *zap.Logger) (*Store, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	store, err := idempotency.NewSQLStore(db)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	logger.Debug("sql claim store ready", zap.String("dialect", db.Dialector.Name()))
	return &Store{Store: store, close: sqlDB.Close}, nil
}

// RouteGate is a gate bound to the route it protects.
type RouteGate struct {
	Method string
	Path   string
	Gate   *txgate.Gate
}

// BuildGates creates one gate per configured route, all sharing store,
// chain and a verifier for the configured policy.
func BuildGates(cfg *Config, store txgate.ClaimStore, chain txgate.ChainReader, logger *zap.Logger, opts ...txgate.GateOption) ([]RouteGate, error) {
	verifier, err := evm.NewVerifier(cfg.Verifier.Policy)
	if err != nil {
		return nil, err
	}

	gates := make([]RouteGate, 0, len(cfg.Routes))
	for _, route := range cfg.Routes {
		method, path, err := SplitPattern(route.Pattern)
		if err != nil {
			return nil, err
		}
		req, err := txgate.NewPaymentRequirement(route)
		if err != nil {
			return nil, fmt.Errorf("route %q: %w", route.Pattern, err)
		}

		gateOpts := append([]txgate.GateOption{
			txgate.WithRoute(method + " " + path),
			txgate.WithGrace(cfg.Store.Grace),
			txgate.WithKeyPrefix(cfg.Store.KeyPrefix),
			txgate.WithLogger(logger),
		}, opts...)
		gate, err := txgate.NewGate(req, store, chain, verifier, gateOpts...)
		if err != nil {
			return nil, fmt.Errorf("route %q: %w", route.Pattern, err)
		}
		gates = append(gates, RouteGate{Method: method, Path: path, Gate: gate})
	}
	return gates, nil
}
