package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"shiba/internal/game"
)

const (
	ROUND_KEY_PREFIX = "shiba:round:"
	ROUNDS_LIST_KEY  = "shiba:rounds"
	VERDICTS_CHANNEL = "shiba:verdicts"
	ROUND_TTL        = 24 * time.Hour
	ROUNDS_KEPT      = 1000
)

// Verdict is published on VERDICTS_CHANNEL for every finished round.
type Verdict struct {
	GameID      int64        `json:"game_id"`
	CrashPoint  int64        `json:"game_crash"`
	Verified    game.Verdict `json:"verified"`
	ChainLinked bool         `json:"chain_linked"`
}

// Archiver stores finished rounds in Redis and announces their verdicts.
type Archiver struct {
	client redis.Cmdable
}

func NewArchiver(client redis.Cmdable) *Archiver {
	return &Archiver{client: client}
}

func (a *Archiver) Name() string { return "redis" }

// Handle archives the round carried by a game_crash notification and ignores
// everything else.
func (a *Archiver) Handle(ctx context.Context, n game.Notification) error {
	if n.Type != game.NotifyGameCrash || n.Round == nil {
		return nil
	}
	return a.Archive(ctx, n.Round)
}

func (a *Archiver) Archive(ctx context.Context, r *game.Round) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal round %d: %w", r.ID, err)
	}
	verdict, err := json.Marshal(Verdict{
		GameID:      r.ID,
		CrashPoint:  r.CrashPoint,
		Verified:    r.Verified,
		ChainLinked: r.ChainLinked,
	})
	if err != nil {
		return fmt.Errorf("marshal verdict %d: %w", r.ID, err)
	}

	id := strconv.FormatInt(r.ID, 10)
	pipe := a.client.TxPipeline()
	pipe.Set(ctx, ROUND_KEY_PREFIX+id, data, ROUND_TTL)
	pipe.LPush(ctx, ROUNDS_LIST_KEY, id)
	pipe.LTrim(ctx, ROUNDS_LIST_KEY, 0, ROUNDS_KEPT-1)
	pipe.Publish(ctx, VERDICTS_CHANNEL, verdict)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("archive round %d: %w", r.ID, err)
	}
	return nil
}

// Recent returns up to limit archived rounds, newest first. Rounds whose key
// has expired are skipped.
func (a *Archiver) Recent(ctx context.Context, limit int64) ([]*game.Round, error) {
	if limit <= 0 {
		return nil, nil
	}
	ids, err := a.client.LRange(ctx, ROUNDS_LIST_KEY, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("list rounds: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = ROUND_KEY_PREFIX + id
	}
	values, err := a.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load rounds: %w", err)
	}

	rounds := make([]*game.Round, 0, len(values))
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var r game.Round
		if err := json.Unmarshal([]byte(s), &r); err != nil {
			return nil, fmt.Errorf("decode round: %w", err)
		}
		rounds = append(rounds, &r)
	}
	return rounds, nil
}

// ArchiveStats summarizes what the archive currently holds.
type ArchiveStats struct {
	Rounds     int64
	LastGameID string
}

func (a *Archiver) Stats(ctx context.Context) (ArchiveStats, error) {
	pipe := a.client.Pipeline()
	length := pipe.LLen(ctx, ROUNDS_LIST_KEY)
	newest := pipe.LIndex(ctx, ROUNDS_LIST_KEY, 0)
	// LINDEX on an empty list answers redis.Nil.
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return ArchiveStats{}, fmt.Errorf("archive stats: %w", err)
	}
	return ArchiveStats{Rounds: length.Val(), LastGameID: newest.Val()}, nil
}
