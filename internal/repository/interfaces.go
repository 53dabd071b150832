package repository

import (
	"context"

	"gcmrelay/internal/gcm"
	"gcmrelay/internal/model"
)

type AppRepository interface {
	Create(ctx context.Context, app *model.GcmApp) error
	GetByPackage(ctx context.Context, pkg string) (*model.GcmApp, error)
	Exists(ctx context.Context, pkg string) (bool, error)
	List(ctx context.Context) ([]model.GcmApp, error)
}

type DeviceRepository interface {
	Create(ctx context.Context, device *model.Device) error
	GetByRegistrationID(ctx context.Context, regID string) (*model.Device, error)
	SetEnabled(ctx context.Context, regID string, enabled bool) error
	// ListByPackage returns devices of an app ordered by last write time
	// descending, paginated.
	ListByPackage(ctx context.Context, pkg string, limit, offset int) ([]model.Device, error)
	// ListEnabledIDs returns the registration ids of enabled devices, capped
	// at limit.
	ListEnabledIDs(ctx context.Context, pkg string, limit int) ([]string, error)
	// ReconcileOutcomes applies all registry mutations from one classified
	// batch in a single transaction: disables plus canonical id migrations.
	// Partial application must never be observable.
	ReconcileOutcomes(ctx context.Context, disabled []string, replacements []gcm.Replacement) error
}

type CounterShardRepository interface {
	// Add atomically adds delta to one shard, creating it at zero first if
	// absent.
	Add(ctx context.Context, counterName string, shardIndex int, delta int64) error
	// Values returns the stored value of every existing shard of a counter.
	Values(ctx context.Context, counterName string) ([]int64, error)
}

type DailyCountRepository interface {
	// Get returns the daily count row, or nil when none exists yet.
	Get(ctx context.Context, id string) (*model.DeviceDailyCount, error)
	Upsert(ctx context.Context, count *model.DeviceDailyCount) error
}
