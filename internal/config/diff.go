package config

import "reflect"

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	// LogLevelChanged is the only change applied without restart.
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// RestartRequired names every other section that changed.
	RestartRequired []string
}

// Changed reports whether anything differs.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	sections := []struct {
		name     string
		old, new any
	}{
		{"server.listen_addr", old.Server.ListenAddr, new.Server.ListenAddr},
		{"server.trace_sample_ratio", old.Server.TraceSampleRatio, new.Server.TraceSampleRatio},
		{"knowledge", old.Knowledge, new.Knowledge},
		{"recognition", old.Recognition, new.Recognition},
		{"match_client", old.MatchClient, new.MatchClient},
		{"publish", old.Publish, new.Publish},
		{"pipeline", old.Pipeline, new.Pipeline},
		{"lifecycle", old.Lifecycle, new.Lifecycle},
	}
	for _, s := range sections {
		if !reflect.DeepEqual(s.old, s.new) {
			d.RestartRequired = append(d.RestartRequired, s.name)
		}
	}
	return d
}
