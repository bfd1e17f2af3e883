package audit

import (
	"context"
	stdsql "database/sql"
	"embed"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the pgx driver for database/sql
)

//go:embed migrations
var migrationsFS embed.FS

// PostgresIndexConfig configures the optional secondary audit index
// (SPEC_FULL.md §2.3). The flat-file JSONL ledger remains the source of
// truth; this index exists only so operators can run
// `WHERE workflow_id = ? AND ts > ?`-style queries without replaying
// every segment.
type PostgresIndexConfig struct {
	Host, User, Password, Database, SSLMode string
	Port                                    int
	QueueSize                               int // bounded mirror queue depth; a failed insert is not retried
}

// PostgresIndex asynchronously mirrors appended events into Postgres.
// It implements AsyncIndex. A dropped or unreachable database never
// blocks or fails an Append to the authoritative ledger — failures are
// logged and the event is dropped from the mirror, per the "never
// silent" rule applied to a non-critical path.
type PostgresIndex struct {
	db     *stdsql.DB
	logger *slog.Logger
	queue  chan Event
	done   chan struct{}
}

// OpenPostgresIndex connects, runs embedded migrations, and starts the
// background mirror worker. Reuses the teacher's pgx + golang-migrate +
// embedded-migrations pattern (originally pkg/database/client.go).
func OpenPostgresIndex(ctx context.Context, cfg PostgresIndexConfig, logger *slog.Logger) (*PostgresIndex, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode)

	db, err := stdsql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("audit: opening postgres index: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("audit: pinging postgres index: %w", err)
	}

	if err := runIndexMigrations(db, cfg.Database); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("audit: running index migrations: %w", err)
	}

	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 1000
	}

	p := &PostgresIndex{
		db:     db,
		logger: logger,
		queue:  make(chan Event, queueSize),
		done:   make(chan struct{}),
	}
	go p.worker()
	return p, nil
}

func runIndexMigrations(db *stdsql.DB, dbName string) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("creating postgres migration driver: %w", err)
	}
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("creating migration source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, dbName, driver)
	if err != nil {
		return fmt.Errorf("creating migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("applying migrations: %w", err)
	}
	// Only close the source driver; closing the migrate instance would
	// also close db, which we still own (same reasoning as the teacher's
	// pkg/database/client.go runMigrations).
	return sourceDriver.Close()
}

// IndexEvent enqueues an event for asynchronous mirroring. A full queue
// drops the event with a logged warning rather than applying backpressure
// to the authoritative Append path.
func (p *PostgresIndex) IndexEvent(e Event) {
	select {
	case p.queue <- e:
	default:
		p.logger.Warn("audit: postgres index queue full, dropping event", "workflow_id", e.WorkflowID, "step", e.Step)
	}
}

func (p *PostgresIndex) worker() {
	for {
		select {
		case e, ok := <-p.queue:
			if !ok {
				return
			}
			p.insert(e)
		case <-p.done:
			return
		}
	}
}

func (p *PostgresIndex) insert(e Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO audit_events (workflow_id, step, agent, action, result, ts, hash)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (workflow_id, step, hash) DO NOTHING`,
		e.WorkflowID, e.Step, e.Agent, e.Action, string(e.Result), e.Timestamp, e.Hash,
	)
	if err != nil {
		p.logger.Warn("audit: postgres index insert failed, dropping event", "error", err, "workflow_id", e.WorkflowID)
	}
}

// Close stops the mirror worker and closes the database connection.
func (p *PostgresIndex) Close() error {
	close(p.done)
	return p.db.Close()
}
