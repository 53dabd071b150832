package model

// CounterShard is one shard of a sharded counter. A logical counter's total
// is the sum over its shards; increments land on a single random shard so
// concurrent registrations never contend on one row.
type CounterShard struct {
	CounterName string `db:"counter_name" json:"counter_name"`
	ShardIndex  int    `db:"shard_index" json:"shard_index"`
	Value       int64  `db:"value" json:"value"`
}

// DeviceDailyCount is the per-app, per-day registration count written by the
// daily aggregation job. ID format: "<package>_register_<yyyy-mm-dd>".
type DeviceDailyCount struct {
	ID                 string `db:"id" json:"id"`
	Count              int64  `db:"count" json:"count"`
	CountTillYesterday int64  `db:"count_till_yesterday" json:"count_till_yesterday"`
}
