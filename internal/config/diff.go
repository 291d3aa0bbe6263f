package config

import "reflect"

// ConfigDiff describes what changed between two configs. Hot-reloadable
// changes (log level, analysis thresholds) are tracked individually;
// everything else is folded into RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// AnalysisChanged is true when any analysis threshold changed. New
	// sessions pick the new thresholds up; running sessions keep the old.
	AnalysisChanged bool

	// ProvidersChanged is true when the provider selection or credentials
	// changed.
	ProvidersChanged bool

	// RestartRequired is true when a change cannot be applied to a running
	// server (capture settings, listen addresses).
	RestartRequired bool
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Analysis != new.Analysis {
		d.AnalysisChanged = true
	}

	if !reflect.DeepEqual(old.Providers, new.Providers) {
		d.ProvidersChanged = true
	}

	if !reflect.DeepEqual(old.Capture, new.Capture) ||
		old.Server.MetricsAddr != new.Server.MetricsAddr {
		d.RestartRequired = true
	}

	return d
}
