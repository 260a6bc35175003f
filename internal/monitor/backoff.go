package monitor

import "time"

// BackoffStep pairs a minimum order age with the polling interval to use
// once an order reaches that age. Steps must be supplied in ascending
// MinAge order.
type BackoffStep struct {
	MinAge   time.Duration
	Interval time.Duration
}

// defaultSchedule mirrors the spec's guidance: poll fresh orders
// aggressively, then back off as they age without settling, since an order
// still pending after hours is increasingly likely stuck or abandoned.
var defaultSchedule = []BackoffStep{
	{MinAge: 0, Interval: 15 * time.Second},
	{MinAge: 5 * time.Minute, Interval: 60 * time.Second},
	{MinAge: 30 * time.Minute, Interval: 5 * time.Minute},
	{MinAge: 2 * time.Hour, Interval: 15 * time.Minute},
}

// pollInterval returns the configured interval for an order of the given
// age, selecting the tightest (longest MinAge not exceeding age) step in
// schedule. schedule must be sorted ascending by MinAge and non-empty.
func pollInterval(schedule []BackoffStep, age time.Duration) time.Duration {
	interval := schedule[0].Interval
	for _, step := range schedule {
		if age < step.MinAge {
			break
		}
		interval = step.Interval
	}
	return interval
}
