package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kapvel/chessvision/internal/domain"
)

var ErrDuplicateGame = errors.New("game already archived")

// Repository persists finished games to Postgres.
type Repository interface {
	InsertGame(ctx context.Context, rec *domain.GameRecord) (int64, error)
	GetGameByUUID(ctx context.Context, gameUUID string) (*domain.GameRecord, error)
	GetRecentGames(ctx context.Context, limit int) ([]*domain.GameRecord, error)
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func (r *repository) InsertGame(ctx context.Context, rec *domain.GameRecord) (int64, error) {
	if rec == nil {
		return 0, fmt.Errorf("nil game record payload")
	}
	movesUCI, err := json.Marshal(rec.MovesUCI)
	if err != nil {
		return 0, fmt.Errorf("marshal moves_uci: %w", err)
	}
	movesSAN, err := json.Marshal(rec.MovesSAN)
	if err != nil {
		return 0, fmt.Errorf("marshal moves_san: %w", err)
	}

	const query = `
		INSERT INTO vision_games (
			game_uuid,
			start_fen,
			final_fen,
			result,
			result_method,
			moves_uci,
			moves_san,
			pgn,
			frames,
			corrections,
			started_at,
			ended_at,
			duration_ms
		)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7::jsonb, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (game_uuid) DO NOTHING
		RETURNING id`

	var id sql.NullInt64
	err = r.db.QueryRowContext(
		ctx,
		query,
		rec.GameUUID,
		rec.StartFEN,
		rec.FinalFEN,
		rec.Result,
		rec.ResultMethod,
		movesUCI,
		movesSAN,
		rec.PGN,
		rec.Frames,
		rec.Corrections,
		rec.StartedAt,
		rec.EndedAt,
		rec.EndedAt.Sub(rec.StartedAt).Milliseconds(),
	).Scan(&id)
	if err == sql.ErrNoRows || (err == nil && !id.Valid) {
		return 0, ErrDuplicateGame
	}
	if err != nil {
		return 0, fmt.Errorf("insert game record: %w", err)
	}
	return id.Int64, nil
}

func (r *repository) GetGameByUUID(ctx context.Context, gameUUID string) (*domain.GameRecord, error) {
	const query = `
		SELECT
			id,
			game_uuid,
			start_fen,
			final_fen,
			result,
			result_method,
			moves_uci,
			moves_san,
			pgn,
			frames,
			corrections,
			started_at,
			ended_at
		FROM vision_games
		WHERE game_uuid = $1
		LIMIT 1`

	rec, err := scanRecord(r.db.QueryRowContext(ctx, query, gameUUID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select game record: %w", err)
	}
	return rec, nil
}

func (r *repository) GetRecentGames(ctx context.Context, limit int) ([]*domain.GameRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	const query = `
		SELECT
			id,
			game_uuid,
			start_fen,
			final_fen,
			result,
			result_method,
			moves_uci,
			moves_san,
			pgn,
			frames,
			corrections,
			started_at,
			ended_at
		FROM vision_games
		ORDER BY ended_at DESC
		LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("select game records: %w", err)
	}
	defer rows.Close()

	recs := make([]*domain.GameRecord, 0, limit)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan game record: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*domain.GameRecord, error) {
	var (
		rec          domain.GameRecord
		movesUCIJSON []byte
		movesSANJSON []byte
	)
	if err := row.Scan(
		&rec.ID,
		&rec.GameUUID,
		&rec.StartFEN,
		&rec.FinalFEN,
		&rec.Result,
		&rec.ResultMethod,
		&movesUCIJSON,
		&movesSANJSON,
		&rec.PGN,
		&rec.Frames,
		&rec.Corrections,
		&rec.StartedAt,
		&rec.EndedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(movesUCIJSON, &rec.MovesUCI); err != nil {
		return nil, fmt.Errorf("unmarshal moves_uci: %w", err)
	}
	if err := json.Unmarshal(movesSANJSON, &rec.MovesSAN); err != nil {
		return nil, fmt.Errorf("unmarshal moves_san: %w", err)
	}
	rec.EndedAt = rec.EndedAt.In(time.UTC)
	rec.StartedAt = rec.StartedAt.In(time.UTC)
	return &rec, nil
}
