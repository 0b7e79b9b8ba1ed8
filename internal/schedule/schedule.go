// Package schedule decides whether the store accepts orders right now,
// based on a weekly open/close schedule.
package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Interval is a same-day open/close pair in "HH:MM", bounds inclusive.
type Interval struct {
	Open  string `json:"open"`
	Close string `json:"close"`
}

type Day struct {
	Active    bool       `json:"active"`
	Intervals []Interval `json:"intervals"`
}

// Week maps time.Weekday (0=Sunday) to that day's schedule.
type Week map[time.Weekday]Day

type Availability struct {
	Open        bool   `json:"open"`
	Reason      string `json:"reason,omitempty"`
	NextOpening string `json:"next_opening,omitempty"`
}

type Repository interface {
	GetWeek(ctx context.Context) (Week, error)
}

// Gate evaluates the schedule against the current time. FailOpen makes the
// gate report open on any internal error: wrongly blocking the storefront
// costs the business more than wrongly letting an order through this check.
type Gate struct {
	repo     Repository
	Enabled  bool
	FailOpen bool
}

func NewGate(repo Repository, enabled, failOpen bool) *Gate {
	return &Gate{repo: repo, Enabled: enabled, FailOpen: failOpen}
}

func (g *Gate) Check(ctx context.Context, now time.Time) Availability {
	if !g.Enabled {
		return Availability{Open: true}
	}

	week, err := g.repo.GetWeek(ctx)
	if err != nil {
		log.Error().Err(err).Bool("fail_open", g.FailOpen).Msg("schedule: could not load schedule")
		if g.FailOpen {
			return Availability{Open: true}
		}
		return Availability{Open: false, Reason: "store availability unknown"}
	}

	minutes := now.Hour()*60 + now.Minute()
	day := week[now.Weekday()]
	if day.Active {
		for _, iv := range day.Intervals {
			open, err1 := parseHHMM(iv.Open)
			clos, err2 := parseHHMM(iv.Close)
			if err1 != nil || err2 != nil {
				log.Error().Str("open", iv.Open).Str("close", iv.Close).Msg("schedule: malformed interval")
				if g.FailOpen {
					return Availability{Open: true}
				}
				continue
			}
			if minutes >= open && minutes <= clos {
				return Availability{Open: true}
			}
		}
	}

	return Availability{
		Open:        false,
		Reason:      "store is closed",
		NextOpening: nextOpening(week, now, minutes),
	}
}

// nextOpening scans today's remaining intervals, then up to 7 days ahead,
// and reports the first interval start found.
func nextOpening(week Week, now time.Time, minutes int) string {
	today := week[now.Weekday()]
	if today.Active {
		for _, iv := range today.Intervals {
			if open, err := parseHHMM(iv.Open); err == nil && open > minutes {
				return fmt.Sprintf("today at %s", iv.Open)
			}
		}
	}
	for i := 1; i <= 7; i++ {
		wd := now.AddDate(0, 0, i).Weekday()
		day := week[wd]
		if !day.Active || len(day.Intervals) == 0 {
			continue
		}
		if _, err := parseHHMM(day.Intervals[0].Open); err != nil {
			continue
		}
		if i == 1 {
			return fmt.Sprintf("tomorrow at %s", day.Intervals[0].Open)
		}
		return fmt.Sprintf("%s at %s", wd.String(), day.Intervals[0].Open)
	}
	return ""
}

func parseHHMM(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, err
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("schedule: invalid time %q", s)
	}
	return h*60 + m, nil
}
