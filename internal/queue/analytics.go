package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/hackgods/clinic-queue/internal/appointment"
)

type Level string

const (
	LevelHigh   Level = "high"
	LevelMedium Level = "medium"
	LevelLow    Level = "low"
)

// PeakHour is the booking volume at one slot start time.
type PeakHour struct {
	Start string
	Count int
	Level Level
}

// VolumeSource provides the historical aggregates analytics are built on.
type VolumeSource interface {
	SlotVolume(ctx context.Context, from, to time.Time, statuses []appointment.Status) ([]appointment.SlotVolume, error)
	HourlyVolume(ctx context.Context, from, to time.Time) ([]appointment.HourlyVolume, error)
}

type Analytics struct {
	source VolumeSource
}

func NewAnalytics(source VolumeSource) *Analytics {
	return &Analytics{source: source}
}

// Classify labels each volume relative to the busiest one: at least 70% is
// high, at least 30% medium, anything else low.
func Classify(volumes []appointment.SlotVolume) []PeakHour {
	peak := 0
	for _, v := range volumes {
		peak = max(peak, v.Count)
	}

	out := make([]PeakHour, 0, len(volumes))
	for _, v := range volumes {
		level := LevelLow
		if peak > 0 {
			switch ratio := float64(v.Count) / float64(peak); {
			case ratio >= 0.7:
				level = LevelHigh
			case ratio >= 0.3:
				level = LevelMedium
			}
		}
		out = append(out, PeakHour{Start: v.Start, Count: v.Count, Level: level})
	}
	return out
}

// PeakHours classifies slot start times by how many upcoming or waiting
// appointments fall on them between from and to, inclusive.
func (a *Analytics) PeakHours(ctx context.Context, from, to time.Time) ([]PeakHour, error) {
	volumes, err := a.source.SlotVolume(ctx, from, to, []appointment.Status{
		appointment.StatusScheduled,
		appointment.StatusCheckedIn,
	})
	if err != nil {
		return nil, fmt.Errorf("load slot volume: %w", err)
	}
	return Classify(volumes), nil
}

// HourlyVolume returns per (day, hour) counts between from and to, inclusive.
func (a *Analytics) HourlyVolume(ctx context.Context, from, to time.Time) ([]appointment.HourlyVolume, error) {
	out, err := a.source.HourlyVolume(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("load hourly volume: %w", err)
	}
	return out, nil
}
