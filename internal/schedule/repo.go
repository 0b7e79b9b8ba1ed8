package schedule

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type PGRepo struct{ db *pgxpool.Pool }

func NewPGRepo(db *pgxpool.Pool) *PGRepo { return &PGRepo{db: db} }

func (r *PGRepo) GetWeek(ctx context.Context) (Week, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := r.db.Query(ctx, `
		SELECT day_of_week, active, intervals
		FROM store_schedules
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	week := make(Week, 7)
	for rows.Next() {
		var (
			dow    int
			active bool
			raw    []byte
		)
		if err := rows.Scan(&dow, &active, &raw); err != nil {
			return nil, err
		}
		var ivs []Interval
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &ivs); err != nil {
				return nil, err
			}
		}
		week[time.Weekday(dow)] = Day{Active: active, Intervals: ivs}
	}
	return week, rows.Err()
}
