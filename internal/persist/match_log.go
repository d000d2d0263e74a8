package persist

import (
	"context"
	"fmt"
	"time"
)

// Match log event kinds.
const (
	EventSpawn = "spawn"
	EventDeath = "death"
)

// MatchEvent is one entry of the per-session combat log.
type MatchEvent struct {
	Kind        string
	NetID       int32
	Other       int32 // killer for deaths
	Participant uint64
	At          time.Time
}

type MatchLogRepo struct {
	db        *DB
	sessionID int64
	room      string
}

func NewMatchLogRepo(db *DB, sessionID int64, room string) *MatchLogRepo {
	return &MatchLogRepo{db: db, sessionID: sessionID, room: room}
}

// Append atomically writes a batch of events in a single transaction.
func (r *MatchLogRepo) Append(ctx context.Context, events []MatchEvent) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("match log begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, e := range events {
		if _, err := tx.Exec(ctx,
			`INSERT INTO match_log (session_id, room, kind, net_id, other_id, participant, at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			r.sessionID, r.room, e.Kind, e.NetID, e.Other, int64(e.Participant), e.At,
		); err != nil {
			return fmt.Errorf("match log insert: %w", err)
		}
	}

	return tx.Commit(ctx)
}
