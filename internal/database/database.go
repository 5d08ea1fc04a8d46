package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/joho/godotenv/autoload"
	"github.com/rs/zerolog/log"
)

// Service represents a service that interacts with a database.
type Service interface {
	// Health returns a map of health status information.
	// The keys and values in the map are service-specific.
	Health() map[string]string

	// DB exposes the pool for migrations and stores.
	DB() *sql.DB

	// Close terminates the database connection.
	// It returns an error if the connection cannot be closed.
	Close() error
}

type service struct {
	db *sql.DB
}

var (
	database   = getEnv("SHIBA_DB_DATABASE", "shiba")
	password   = getEnv("SHIBA_DB_PASSWORD", "postgres")
	username   = getEnv("SHIBA_DB_USERNAME", "postgres")
	port       = getEnv("SHIBA_DB_PORT", "5432")
	host       = getEnv("SHIBA_DB_HOST", "localhost")
	schema     = getEnv("SHIBA_DB_SCHEMA", "public")
	dbInstance *service
)

// ConnString is the pgx DSN built from the SHIBA_DB_* settings.
func ConnString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable&search_path=%s",
		username, password, host, port, database, schema)
}

func New() Service {
	// Reuse Connection
	if dbInstance != nil {
		return dbInstance
	}
	db, err := sql.Open("pgx", ConnString())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	dbInstance = &service{
		db: db,
	}
	return dbInstance
}

// Health pings the database and reports pool statistics along with how many
// finished rounds the store holds.
func (s *service) Health() map[string]string {
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	stats := make(map[string]string)

	err := s.db.PingContext(ctx)
	if err != nil {
		stats["status"] = "down"
		stats["error"] = fmt.Sprintf("db down: %v", err)
		log.Error().Err(err).Msg("database down")
		return stats
	}

	stats["status"] = "up"
	stats["message"] = "It's healthy"

	dbStats := s.db.Stats()
	stats["open_connections"] = strconv.Itoa(dbStats.OpenConnections)
	stats["in_use"] = strconv.Itoa(dbStats.InUse)
	stats["idle"] = strconv.Itoa(dbStats.Idle)
	stats["wait_count"] = strconv.FormatInt(dbStats.WaitCount, 10)
	stats["wait_duration"] = dbStats.WaitDuration.String()
	stats["max_idle_closed"] = strconv.FormatInt(dbStats.MaxIdleClosed, 10)
	stats["max_lifetime_closed"] = strconv.FormatInt(dbStats.MaxLifetimeClosed, 10)

	var rounds, lastID int64
	err = s.db.QueryRowContext(ctx, `SELECT count(*), coalesce(max(id), 0) FROM rounds`).Scan(&rounds, &lastID)
	if err != nil {
		// Before the first migration there is no rounds table.
		stats["rounds_error"] = err.Error()
	} else {
		stats["stored_rounds"] = strconv.FormatInt(rounds, 10)
		stats["last_stored_game"] = strconv.FormatInt(lastID, 10)
	}

	if dbStats.OpenConnections > 8 {
		stats["message"] = "The database is experiencing heavy load."
	}
	if dbStats.WaitCount > 1000 {
		stats["message"] = "The database has a high number of wait events, indicating potential bottlenecks."
	}

	return stats
}

func (s *service) DB() *sql.DB {
	return s.db
}

// Close closes the database connection.
func (s *service) Close() error {
	log.Info().Str("database", database).Msg("disconnected from database")
	dbInstance = nil
	return s.db.Close()
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
