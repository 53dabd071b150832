package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"gcmrelay/internal/model"
	"gcmrelay/internal/repository"
)

// CounterReader is the slice of the sharded counter the aggregation needs.
type CounterReader interface {
	Read(ctx context.Context, name string) (int64, error)
}

// DailyPoint is one day of an app's registration series.
type DailyPoint struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

// AppDailySeries is the dashboard data for one app.
type AppDailySeries struct {
	Package     string       `json:"package"`
	DisplayName string       `json:"display_name"`
	Points      []DailyPoint `json:"points"`
}

// StatsService maintains and serves the per-app daily registration counts.
// The daily job turns the monotonically growing sharded counter into
// per-day deltas; the series endpoint feeds the dashboard chart.
type StatsService struct {
	apps    repository.AppRepository
	daily   repository.DailyCountRepository
	counter CounterReader
}

func NewStatsService(apps repository.AppRepository, daily repository.DailyCountRepository, counter CounterReader) *StatsService {
	return &StatsService{
		apps:    apps,
		daily:   daily,
		counter: counter,
	}
}

func dailyCountID(pkg string, day time.Time) string {
	return pkg + "_register_" + day.Format("2006-01-02")
}

// AggregateDaily computes today's registration count for every app:
// today = counter total - total as of yesterday's aggregation. Re-running
// on the same day just refreshes today's row.
func (s *StatsService) AggregateDaily(ctx context.Context, today time.Time) error {
	apps, err := s.apps.List(ctx)
	if err != nil {
		return fmt.Errorf("list apps: %w", err)
	}

	yesterday := today.AddDate(0, 0, -1)

	for _, app := range apps {
		yesterdayRow, err := s.daily.Get(ctx, dailyCountID(app.Package, yesterday))
		if err != nil {
			return fmt.Errorf("load yesterday count for %s: %w", app.Package, err)
		}
		var countTillYesterday int64
		if yesterdayRow != nil {
			countTillYesterday = yesterdayRow.CountTillYesterday
		}

		total, err := s.counter.Read(ctx, app.Package+"_register")
		if err != nil {
			return fmt.Errorf("read counter for %s: %w", app.Package, err)
		}

		todayCount := total - countTillYesterday
		log.Printf("[Stats] package: %s, total: %d, till yesterday: %d, today: %d",
			app.Package, total, countTillYesterday, todayCount)

		row := &model.DeviceDailyCount{
			ID:                 dailyCountID(app.Package, today),
			Count:              todayCount,
			CountTillYesterday: total,
		}
		if err := s.daily.Upsert(ctx, row); err != nil {
			return fmt.Errorf("store daily count for %s: %w", app.Package, err)
		}
	}

	return nil
}

// RegisterSeries returns the last `days` days of registration counts for
// every app, most recent day last. Days with no aggregated row count as 0.
func (s *StatsService) RegisterSeries(ctx context.Context, days int) ([]AppDailySeries, error) {
	if days <= 0 {
		days = 7
	}

	apps, err := s.apps.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list apps: %w", err)
	}

	today := time.Now()
	series := make([]AppDailySeries, 0, len(apps))
	for _, app := range apps {
		points := make([]DailyPoint, 0, days)
		for offset := -(days - 1); offset <= 0; offset++ {
			day := today.AddDate(0, 0, offset)
			row, err := s.daily.Get(ctx, dailyCountID(app.Package, day))
			if err != nil {
				return nil, fmt.Errorf("load daily count: %w", err)
			}
			var count int64
			if row != nil {
				count = row.Count
			}
			points = append(points, DailyPoint{Date: day.Format("2006-01-02"), Count: count})
		}
		series = append(series, AppDailySeries{
			Package:     app.Package,
			DisplayName: app.DisplayName,
			Points:      points,
		})
	}

	return series, nil
}
