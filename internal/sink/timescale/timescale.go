// Package timescale stores readings as timestamped rows in a TimescaleDB
// hypertable.
package timescale

import (
	"context"
	"fmt"
	"regexp"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/d21d3q/golora/internal/sink"
)

// DefaultTable receives readings when no table is configured.
const DefaultTable = "lora_readings"

var tableName = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Config holds connection parameters.
type Config struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	Table    string `mapstructure:"table"`
}

// DSN renders the lib/pq connection string.
func (c Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// Connect opens and pings the database.
func Connect(ctx context.Context, cfg Config) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("error connecting to TimescaleDB: %w", err)
	}
	logrus.WithFields(logrus.Fields{"host": cfg.Host, "port": cfg.Port, "db": cfg.DBName}).Info("connected to TimescaleDB")
	return db, nil
}

// Sink inserts one row per sample.
type Sink struct {
	db     *sqlx.DB
	table  string
	insert string
	newID  func() string
}

var _ sink.Sink = (*Sink)(nil)

// New returns a sink writing to table. An empty table selects DefaultTable.
func New(db *sqlx.DB, table string) (*Sink, error) {
	if table == "" {
		table = DefaultTable
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Sink{
		db:    db,
		table: table,
		insert: fmt.Sprintf(`INSERT INTO %s (id, time, metric, value, unique_id, device_type)
		VALUES ($1, $2, $3, $4, $5, $6)`, table),
		newID: func() string { return uuid.NewString() },
	}, nil
}

// EnsureSchema creates the readings table and turns it into a hypertable.
func (s *Sink) EnsureSchema(ctx context.Context) error {
	queries := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id UUID NOT NULL,
			time TIMESTAMPTZ NOT NULL,
			metric TEXT NOT NULL,
			value DOUBLE PRECISION NOT NULL,
			unique_id TEXT NOT NULL,
			device_type TEXT NOT NULL
		)`, s.table),
		fmt.Sprintf(`SELECT create_hypertable('%s', 'time', if_not_exists => TRUE)`, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_node_time ON %s (unique_id, time DESC)`, s.table, s.table),
	}
	for _, q := range queries {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return nil
}

// Record implements sink.Sink.
func (s *Sink) Record(ctx context.Context, smp sink.Sample) error {
	_, err := s.db.ExecContext(ctx, s.insert,
		s.newID(), smp.Time(), smp.Metric, smp.Value, smp.Labels.UniqueID, smp.Labels.DeviceType)
	if err != nil {
		return sink.Unavailable("timescale", fmt.Errorf("insert %s: %w", smp.Metric, err))
	}
	return nil
}

// Close closes the database handle.
func (s *Sink) Close() error { return s.db.Close() }
