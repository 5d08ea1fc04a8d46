package main

import (
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/joho/godotenv/autoload"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"shiba/internal/database"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	command := os.Args[1]
	migrationsPath := getEnv("MIGRATIONS_PATH", "./migrations")

	if command == "create" {
		if len(os.Args) < 3 {
			log.Fatal().Msg("usage: migrate create <migration_name>")
		}
		createMigration(migrationsPath, os.Args[2])
		return
	}

	db, err := sql.Open("pgx", database.ConnString())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	switch command {
	case "up":
		log.Info().Str("path", migrationsPath).Msg("running migrations")
		if err := database.RunMigrations(db, migrationsPath); err != nil {
			log.Fatal().Err(err).Msg("migration failed")
		}
		log.Info().Msg("migrations completed")

	case "down":
		log.Info().Msg("rolling back last migration")
		if err := database.RollbackMigration(db, migrationsPath); err != nil {
			log.Fatal().Err(err).Msg("rollback failed")
		}
		log.Info().Msg("rollback completed")

	case "version":
		version, dirty, err := database.GetMigrationVersion(db, migrationsPath)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to get version")
		}
		if dirty {
			log.Warn().Uint("version", version).Msg("schema is DIRTY, needs manual intervention")
		} else {
			log.Info().Uint("version", version).Msg("current version")
		}

	default:
		log.Error().Str("command", command).Msg("unknown command")
		printUsage()
		os.Exit(1)
	}
}

func createMigration(dir, name string) {
	files, err := os.ReadDir(dir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to read migrations directory")
	}

	count := 0
	for _, file := range files {
		if !file.IsDir() {
			count++
		}
	}
	nextVersion := count/2 + 1 // up and down per version

	upFile := fmt.Sprintf("%s/%06d_%s.up.sql", dir, nextVersion, name)
	downFile := fmt.Sprintf("%s/%06d_%s.down.sql", dir, nextVersion, name)

	upContent := fmt.Sprintf("-- Migration: %s\n-- Created: %s\n\n", name, time.Now().UTC().Format(time.RFC3339))
	if err := os.WriteFile(upFile, []byte(upContent), 0644); err != nil {
		log.Fatal().Err(err).Msg("failed to create up migration")
	}
	downContent := fmt.Sprintf("-- Rollback: %s\n\n", name)
	if err := os.WriteFile(downFile, []byte(downContent), 0644); err != nil {
		log.Fatal().Err(err).Msg("failed to create down migration")
	}

	log.Info().Str("up", upFile).Str("down", downFile).Msg("created migration files")
}

func printUsage() {
	fmt.Println("Database Migration Tool")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  migrate up              Run all pending migrations")
	fmt.Println("  migrate down            Rollback the last migration")
	fmt.Println("  migrate version         Show current migration version")
	fmt.Println("  migrate create <name>   Create a new migration file")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  SHIBA_DB_HOST           Database host (default: localhost)")
	fmt.Println("  SHIBA_DB_PORT           Database port (default: 5432)")
	fmt.Println("  SHIBA_DB_DATABASE       Database name (default: shiba)")
	fmt.Println("  SHIBA_DB_USERNAME       Database user (default: postgres)")
	fmt.Println("  SHIBA_DB_PASSWORD       Database password (default: postgres)")
	fmt.Println("  SHIBA_DB_SCHEMA         Search path (default: public)")
	fmt.Println("  MIGRATIONS_PATH         Path to migrations (default: ./migrations)")
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
