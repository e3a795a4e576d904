package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"

	_ "github.com/glebarez/go-sqlite"
	_ "github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Store persists plans, step states and interaction logs.
type Store struct {
	DB     *sql.DB
	Driver string
}

// Open connects to the given driver and DSN. The sqlite schema is created
// in place; postgres is expected to be migrated beforehand.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	switch driver {
	case DriverPostgres, DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if driver == DriverSQLite {
		// one writer at a time keeps sqlite from returning SQLITE_BUSY
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	s := &Store{DB: db, Driver: driver}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewWithDSN constructs the Store using an explicit Postgres DSN
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	return Open(ctx, DriverPostgres, dsn)
}

func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.DB.PingContext(ctx)
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS plans (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  goal TEXT NOT NULL,
  plan_json TEXT NOT NULL,
  created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`,
	`CREATE TABLE IF NOT EXISTS steps (
  step_id TEXT PRIMARY KEY,
  plan_id INTEGER NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  result_json TEXT,
  created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`,
	`CREATE INDEX IF NOT EXISTS idx_steps_plan_id ON steps (plan_id)`,
	`CREATE TABLE IF NOT EXISTS logs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  agent TEXT NOT NULL,
  created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
  prompt TEXT NOT NULL,
  response TEXT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_logs_agent ON logs (agent, created_at)`,
}

func (s *Store) ensureSchema(ctx context.Context) error {
	if s.Driver != DriverSQLite {
		return nil
	}
	for _, stmt := range sqliteSchema {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

var (
	metricsOnce       sync.Once
	plansCreated      otelmetric.Int64Counter
	stepTransitions   otelmetric.Int64Counter
	interactionsSaved otelmetric.Int64Counter
)

func initStoreMetrics() {
	meter := otel.Meter("studybuddy/store")
	var err error
	plansCreated, err = meter.Int64Counter("store_plans_created_total")
	if err != nil {
		log.Printf("store metrics init: store_plans_created_total: %v", err)
	}
	stepTransitions, err = meter.Int64Counter("store_step_transitions_total")
	if err != nil {
		log.Printf("store metrics init: store_step_transitions_total: %v", err)
	}
	interactionsSaved, err = meter.Int64Counter("store_interactions_total")
	if err != nil {
		log.Printf("store metrics init: store_interactions_total: %v", err)
	}
}

func recordStepTransition(ctx context.Context, status string) {
	metricsOnce.Do(initStoreMetrics)
	if stepTransitions != nil {
		stepTransitions.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("status", status)))
	}
}

func recordPlanCreated(ctx context.Context) {
	metricsOnce.Do(initStoreMetrics)
	if plansCreated != nil {
		plansCreated.Add(ctx, 1)
	}
}

func recordInteraction(ctx context.Context, agent string) {
	metricsOnce.Do(initStoreMetrics)
	if interactionsSaved != nil {
		interactionsSaved.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("agent", agent)))
	}
}

// nullableJSON binds JSON as text so sqlite stores TEXT rather than BLOB.
func nullableJSON(raw []byte) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
