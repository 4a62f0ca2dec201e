package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/opscart/cloud-cost-observer/pkg/datasource"
	"github.com/opscart/cloud-cost-observer/pkg/models"
)

//go:embed migrations/*.sql
var postgresFS embed.FS

// PostgresStore implements AllocationStore using PostgreSQL
type PostgresStore struct {
	db  *sql.DB
	dsn string
}

// NewPostgresStore creates a new PostgreSQL store
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &PostgresStore{
		db:  db,
		dsn: dsn,
	}

	// Run migrations
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// migrate runs database migrations
func (s *PostgresStore) migrate() error {
	schema, err := postgresFS.ReadFile("migrations/001_cost_allocations.sql")
	if err != nil {
		return fmt.Errorf("failed to read schema: %w", err)
	}

	if _, err := s.db.Exec(string(schema)); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	return nil
}

func (s *PostgresStore) Name() string {
	return "postgres"
}

// Allocations reads the rows of one organizational dimension within period
func (s *PostgresStore) Allocations(ctx context.Context, dim models.Dimension, period models.Period) (*datasource.AllocationSet, error) {
	query := `
		SELECT id, day, dimension, key, cost_usd,
			instance_count, cpu_hours, priority, owner, labels
		FROM cost_allocations
		WHERE dimension = $1 AND day >= $2 AND day < $3
		ORDER BY day, key
	`

	rows, err := s.db.QueryContext(ctx, query, string(dim),
		period.Start.Format(models.DateLayout), period.End.Format(models.DateLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to query allocations: %w", err)
	}
	defer rows.Close()

	var allocations []AllocationRow
	for rows.Next() {
		var row AllocationRow
		var day time.Time
		var dimension string
		var instanceCount sql.NullInt64
		var cpuHours sql.NullFloat64
		var priority, owner sql.NullString
		var labels []byte

		err := rows.Scan(
			&row.ID, &day, &dimension, &row.Key, &row.CostUsd,
			&instanceCount, &cpuHours, &priority, &owner, &labels,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan allocation: %w", err)
		}

		row.Day = day.Format(models.DateLayout)
		row.Dimension = models.Dimension(dimension)
		if instanceCount.Valid {
			n := int(instanceCount.Int64)
			row.InstanceCount = &n
		}
		if cpuHours.Valid {
			h := cpuHours.Float64
			row.CPUHours = &h
		}
		row.Priority = models.ParsePriority(priority.String)
		row.Owner = owner.String
		if len(labels) > 0 {
			if err := json.Unmarshal(labels, &row.Labels); err != nil {
				return nil, fmt.Errorf("invalid labels for %s: %w", row.Key, err)
			}
		}

		allocations = append(allocations, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return BuildAllocationSet(allocations), nil
}

// SaveAllocations upserts rows in a single transaction
func (s *PostgresStore) SaveAllocations(ctx context.Context, rows []AllocationRow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO cost_allocations (
			id, day, dimension, key, cost_usd,
			instance_count, cpu_hours, priority, owner, labels
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (day, dimension, key) DO UPDATE SET
			cost_usd = EXCLUDED.cost_usd,
			instance_count = EXCLUDED.instance_count,
			cpu_hours = EXCLUDED.cpu_hours,
			priority = EXCLUDED.priority,
			owner = EXCLUDED.owner,
			labels = EXCLUDED.labels
	`

	for i := range rows {
		row := &rows[i]
		if row.ID == "" {
			row.ID = uuid.New().String()
		}

		var labels any
		if len(row.Labels) > 0 {
			encoded, err := json.Marshal(row.Labels)
			if err != nil {
				return fmt.Errorf("failed to encode labels: %w", err)
			}
			labels = string(encoded)
		}

		_, err := tx.ExecContext(ctx, query,
			row.ID, row.Day, string(row.Dimension), row.Key, row.CostUsd,
			row.InstanceCount, row.CPUHours, nullString(string(row.Priority)), nullString(row.Owner), labels,
		)
		if err != nil {
			return fmt.Errorf("failed to save allocation %s/%s/%s: %w", row.Day, row.Dimension, row.Key, err)
		}
	}

	return tx.Commit()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Ping checks database connectivity
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
