// Package engine provides the resource-limited job scheduler behind compute
// nodes: jobs with a pending/running/done/failed/canceled state machine,
// bounded thread and process worker slots, per-status job stores preserving
// insertion order, and a polling wait/join protocol.
//
// The engine is consumed by the flow package as an opaque scheduler: submit
// a pending job, get completion callbacks on the driver path, wait until
// the running set drains.
package engine

import "github.com/kelseyhightower/envconfig"

// Settings bound the engine's worker resources.
type Settings struct {
	// MaxThreads is the number of concurrent thread-job slots.
	MaxThreads int `envconfig:"MAX_THREADS" default:"20"`

	// MaxProcesses is the number of concurrent process-job slots.
	MaxProcesses int `envconfig:"MAX_PROCESSES" default:"8"`
}

// DefaultSettings returns the stock resource limits.
func DefaultSettings() Settings {
	return Settings{MaxThreads: 20, MaxProcesses: 8}
}

// SettingsFromEnv loads settings from SUNMAO_MAX_THREADS and
// SUNMAO_MAX_PROCESSES, falling back to the defaults.
func SettingsFromEnv() (Settings, error) {
	var s Settings
	if err := envconfig.Process("sunmao", &s); err != nil {
		return Settings{}, err
	}
	return s, nil
}
