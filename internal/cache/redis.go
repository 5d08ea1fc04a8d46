package cache

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Service is the Redis connection backing the round archive.
type Service interface {
	GetClient() *redis.Client
	Archiver() *Archiver
	Health() map[string]string
	Close() error
}

type service struct {
	client   *redis.Client
	archiver *Archiver
}

var (
	redisAddr     = getEnv("REDIS_URL", "localhost:6379")
	redisPassword = getEnv("REDIS_PASSWORD", "")
	redisDB       = getEnvAsInt("REDIS_DB", 0)
	cacheInstance *service
)

func redisOptions() *redis.Options {
	return &redis.Options{
		Addr:         redisAddr,
		Password:     redisPassword,
		DB:           redisDB,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

func newService(client *redis.Client) *service {
	return &service{client: client, archiver: NewArchiver(client)}
}

// New connects to REDIS_URL. It returns nil when Redis is unreachable so the
// client can run without an archive.
func New() Service {
	if cacheInstance != nil {
		return cacheInstance
	}

	client := redis.NewClient(redisOptions())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Str("addr", redisAddr).Msg("redis unavailable, running without round archive")
		client.Close()
		return nil
	}

	log.Info().Str("addr", redisAddr).Int("db", redisDB).Msg("redis connected")
	cacheInstance = newService(client)
	return cacheInstance
}

func (s *service) GetClient() *redis.Client {
	return s.client
}

func (s *service) Archiver() *Archiver {
	return s.archiver
}

// Health reports connectivity and the state of the round archive.
func (s *service) Health() map[string]string {
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	stats := make(map[string]string)

	start := time.Now()
	if err := s.client.Ping(ctx).Err(); err != nil {
		stats["status"] = "down"
		stats["error"] = fmt.Sprintf("redis down: %v", err)
		return stats
	}
	stats["status"] = "up"
	stats["message"] = "Redis is healthy"
	stats["latency"] = time.Since(start).String()

	archive, err := s.archiver.Stats(ctx)
	if err != nil {
		stats["archive_error"] = err.Error()
	} else {
		stats["archived_rounds"] = strconv.FormatInt(archive.Rounds, 10)
		if archive.LastGameID != "" {
			stats["last_archived_game"] = archive.LastGameID
		}
	}

	pool := s.client.PoolStats()
	stats["total_conns"] = strconv.FormatUint(uint64(pool.TotalConns), 10)
	stats["idle_conns"] = strconv.FormatUint(uint64(pool.IdleConns), 10)
	stats["timeouts"] = strconv.FormatUint(uint64(pool.Timeouts), 10)

	return stats
}

func (s *service) Close() error {
	log.Info().Msg("disconnecting from redis")
	cacheInstance = nil
	return s.client.Close()
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}
