package store

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	liveGameTTL    = 24 * time.Hour
	currentGameKey = "vision:game:current"
)

// LiveGame mirrors the in-progress reconciled game to Redis so a restarted
// daemon can show the last known state while it waits for frames.
type LiveGame struct {
	GameID      string    `json:"game_id"`
	Status      string    `json:"status"`
	StartFEN    string    `json:"start_fen"`
	FEN         string    `json:"fen"`
	MovesUCI    []string  `json:"moves_uci"`
	MovesSAN    []string  `json:"moves_san"`
	Corrections int       `json:"corrections"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type LiveStore struct {
	rdb *redis.Client
}

func NewLiveStore(redisURL string) (*LiveStore, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("REDIS_URL required for live store")
	}
	opts, err := parseRedisURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &LiveStore{rdb: rdb}, nil
}

func (s *LiveStore) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

// Save writes the game document and points the current-game key at it.
func (s *LiveStore) Save(ctx context.Context, g *LiveGame) error {
	if s == nil || s.rdb == nil {
		return fmt.Errorf("live store not initialized")
	}
	if g == nil || strings.TrimSpace(g.GameID) == "" {
		return fmt.Errorf("invalid live game payload")
	}
	raw, err := json.Marshal(g)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, gameKey(g.GameID), raw, liveGameTTL).Err(); err != nil {
		return err
	}
	return s.rdb.Set(ctx, currentGameKey, g.GameID, liveGameTTL).Err()
}

// Load returns the stored game, or nil when absent.
func (s *LiveStore) Load(ctx context.Context, gameID string) (*LiveGame, error) {
	if s == nil || s.rdb == nil {
		return nil, fmt.Errorf("live store not initialized")
	}
	raw, err := s.rdb.Get(ctx, gameKey(gameID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var g LiveGame
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

// LoadCurrent follows the current-game pointer.
func (s *LiveStore) LoadCurrent(ctx context.Context) (*LiveGame, error) {
	if s == nil || s.rdb == nil {
		return nil, fmt.Errorf("live store not initialized")
	}
	id, err := s.rdb.Get(ctx, currentGameKey).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s.Load(ctx, id)
}

// Clear removes the current-game pointer, used when a game is archived.
func (s *LiveStore) Clear(ctx context.Context) error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Del(ctx, currentGameKey).Err()
}

func gameKey(id string) string { return "vision:game:" + strings.TrimSpace(id) }

func parseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			db = n
		}
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Password: pass, DB: db}, nil
}
