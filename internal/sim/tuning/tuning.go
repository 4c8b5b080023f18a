package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	TickRateHz  int `yaml:"tick_rate_hz"`
	TicksPerDay int `yaml:"ticks_per_day"`

	JournalRotateLayout string `yaml:"journal_rotate_layout"`

	IndexCommitEvery     int `yaml:"index_commit_every"`
	IndexCommitMaxWaitMs int `yaml:"index_commit_max_wait_ms"`

	WatchOutBuffer int `yaml:"watch_out_buffer"`

	MirrorWorkers       int `yaml:"mirror_workers"`
	MirrorQueueCapacity int `yaml:"mirror_queue_capacity"`
	MirrorEnqueueWaitMs int `yaml:"mirror_enqueue_wait_ms"`

	StatsWindowDays int `yaml:"stats_window_days"`
}

// Defaults are the values a missing or partial tuning.yaml falls back to.
func Defaults() Tuning {
	return Tuning{
		TickRateHz:           5,
		TicksPerDay:          6000,
		JournalRotateLayout:  "2006-01-02-15",
		IndexCommitEvery:     2000,
		IndexCommitMaxWaitMs: 2000,
		WatchOutBuffer:       64,
		MirrorWorkers:        2,
		MirrorQueueCapacity:  2048,
		MirrorEnqueueWaitMs:  25,
		StatsWindowDays:      30,
	}
}

func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t.normalized(), nil
}

func (t Tuning) normalized() Tuning {
	d := Defaults()
	if t.TickRateHz <= 0 {
		t.TickRateHz = d.TickRateHz
	}
	if t.TicksPerDay <= 0 {
		t.TicksPerDay = d.TicksPerDay
	}
	if t.JournalRotateLayout == "" {
		t.JournalRotateLayout = d.JournalRotateLayout
	}
	if t.IndexCommitEvery <= 0 {
		t.IndexCommitEvery = d.IndexCommitEvery
	}
	if t.IndexCommitMaxWaitMs <= 0 {
		t.IndexCommitMaxWaitMs = d.IndexCommitMaxWaitMs
	}
	if t.WatchOutBuffer <= 0 {
		t.WatchOutBuffer = d.WatchOutBuffer
	}
	if t.MirrorWorkers <= 0 {
		t.MirrorWorkers = d.MirrorWorkers
	}
	if t.MirrorQueueCapacity <= 0 {
		t.MirrorQueueCapacity = d.MirrorQueueCapacity
	}
	if t.MirrorEnqueueWaitMs <= 0 {
		t.MirrorEnqueueWaitMs = d.MirrorEnqueueWaitMs
	}
	if t.StatsWindowDays <= 0 {
		t.StatsWindowDays = d.StatsWindowDays
	}
	return t
}
