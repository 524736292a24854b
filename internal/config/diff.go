package config

// ConfigDiff describes what changed between two configs. Only changes that
// can be applied without restarting the daemon are itemised; backend changes
// are flagged so the caller can log that a restart is needed.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// EngineChanged is true when any engine tunable changed.
	EngineChanged bool

	// VoiceChanged is true when the command filter settings changed.
	VoiceChanged bool

	// BackendsChanged is true when the backend chain changed. Backend
	// construction happens at startup, so this requires a restart.
	BackendsChanged bool
	BackendChanges  []BackendDiff
}

// BackendDiff describes what changed for a single backend entry.
type BackendDiff struct {
	Name               string
	Added              bool
	Removed            bool
	CredentialsChanged bool
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Logging.Level != new.Logging.Level {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Logging.Level
	}

	if old.Engine != new.Engine {
		d.EngineChanged = true
	}

	if !phrasesEqual(old.Voice.Phrases, new.Voice.Phrases) ||
		old.Voice.PhoneticThreshold != new.Voice.PhoneticThreshold ||
		old.Voice.FuzzyThreshold != new.Voice.FuzzyThreshold {
		d.VoiceChanged = true
	}

	oldBackends := make(map[string]*BackendEntry, len(old.Backends))
	for i := range old.Backends {
		oldBackends[old.Backends[i].Name] = &old.Backends[i]
	}
	newBackends := make(map[string]*BackendEntry, len(new.Backends))
	for i := range new.Backends {
		newBackends[new.Backends[i].Name] = &new.Backends[i]
	}

	for name, oldEntry := range oldBackends {
		newEntry, exists := newBackends[name]
		if !exists {
			d.BackendChanges = append(d.BackendChanges, BackendDiff{Name: name, Removed: true})
			d.BackendsChanged = true
			continue
		}
		if oldEntry.APIKey != newEntry.APIKey ||
			oldEntry.BaseURL != newEntry.BaseURL ||
			oldEntry.Model != newEntry.Model {
			d.BackendChanges = append(d.BackendChanges, BackendDiff{Name: name, CredentialsChanged: true})
			d.BackendsChanged = true
		}
	}

	for name := range newBackends {
		if _, exists := oldBackends[name]; !exists {
			d.BackendChanges = append(d.BackendChanges, BackendDiff{Name: name, Added: true})
			d.BackendsChanged = true
		}
	}

	// Chain order matters even when the entry set is identical.
	if !d.BackendsChanged && len(old.Backends) == len(new.Backends) {
		for i := range old.Backends {
			if old.Backends[i].Name != new.Backends[i].Name {
				d.BackendsChanged = true
				break
			}
		}
	}

	return d
}

func phrasesEqual(a, b []PhraseConfig) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
