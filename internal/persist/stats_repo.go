package persist

import (
	"context"
	"fmt"

	"github.com/skirmish/server/internal/combat"
	"github.com/skirmish/server/internal/scoreboard"
)

// StatsRow is one participant's standing in one session.
type StatsRow struct {
	Name   string
	Score  int32
	Kills  int32
	Deaths int32
}

// Totals aggregates a name's rows across sessions.
type Totals struct {
	Name     string
	Score    int64
	Kills    int64
	Deaths   int64
	Sessions int64
}

// StatsRepo stores scoreboard rows keyed by (session, room, name).
type StatsRepo struct {
	db        *DB
	sessionID int64
	room      string
}

func NewStatsRepo(db *DB, sessionID int64, room string) *StatsRepo {
	return &StatsRepo{db: db, sessionID: sessionID, room: room}
}

// rowsFromBoard maps scoreboard rows to stored rows. Unnamed participants
// are stored under their participant id.
func rowsFromBoard(rows []scoreboard.Row) []StatsRow {
	out := make([]StatsRow, 0, len(rows))
	for _, r := range rows {
		name := r.Name
		if name == "" {
			name = r.Participant.String()
		}
		out = append(out, StatsRow{
			Name:   name,
			Score:  r.Score,
			Kills:  r.Counters[combat.CounterKills],
			Deaths: r.Counters[combat.CounterDeaths],
		})
	}
	return out
}

// SaveBoard upserts the given scoreboard rows in one transaction.
func (r *StatsRepo) SaveBoard(ctx context.Context, rows []scoreboard.Row) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("stats begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, row := range rowsFromBoard(rows) {
		if _, err := tx.Exec(ctx,
			`INSERT INTO participant_stats (session_id, room, name, score, kills, deaths, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, NOW())
			 ON CONFLICT (session_id, room, name)
			 DO UPDATE SET score = EXCLUDED.score, kills = EXCLUDED.kills,
			               deaths = EXCLUDED.deaths, updated_at = NOW()`,
			r.sessionID, r.room, row.Name, row.Score, row.Kills, row.Deaths,
		); err != nil {
			return fmt.Errorf("stats upsert %s: %w", row.Name, err)
		}
	}

	return tx.Commit(ctx)
}

// Leaders returns the best totals in this room across all sessions.
func (r *StatsRepo) Leaders(ctx context.Context, limit int) ([]Totals, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT name, SUM(score), SUM(kills), SUM(deaths), COUNT(*)
		 FROM participant_stats WHERE room = $1
		 GROUP BY name ORDER BY SUM(score) DESC, name
		 LIMIT $2`, r.room, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("stats leaders: %w", err)
	}
	defer rows.Close()

	var out []Totals
	for rows.Next() {
		var t Totals
		if err := rows.Scan(&t.Name, &t.Score, &t.Kills, &t.Deaths, &t.Sessions); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
