package config

import "reflect"

// ConfigDiff describes what changed between two configs. Only the log level
// is applied live; every other changed section is listed in RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// RestartRequired names the top-level sections that changed and only take
	// effect after a restart, e.g. "providers" or "store".
	RestartRequired []string
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	oldSrv, newSrv := old.Server, new.Server
	oldSrv.LogLevel, newSrv.LogLevel = "", ""
	if oldSrv != newSrv {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if !providersEqual(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if old.Store != new.Store {
		d.RestartRequired = append(d.RestartRequired, "store")
	}
	if !ragEqual(old.RAG, new.RAG) {
		d.RestartRequired = append(d.RestartRequired, "rag")
	}
	if old.Speech != new.Speech {
		d.RestartRequired = append(d.RestartRequired, "speech")
	}
	if old.Client != new.Client {
		d.RestartRequired = append(d.RestartRequired, "client")
	}
	return d
}

func providersEqual(a, b ProvidersConfig) bool {
	return entryEqual(a.LLM, b.LLM) && entryEqual(a.STT, b.STT) &&
		entryEqual(a.TTS, b.TTS) && entryEqual(a.Embeddings, b.Embeddings)
}

func entryEqual(a, b ProviderEntry) bool {
	if a.Name != b.Name || a.APIKey != b.APIKey || a.BaseURL != b.BaseURL || a.Model != b.Model {
		return false
	}
	if len(a.Fallbacks) != len(b.Fallbacks) {
		return false
	}
	if (len(a.Options) > 0 || len(b.Options) > 0) && !reflect.DeepEqual(a.Options, b.Options) {
		return false
	}
	for i := range a.Fallbacks {
		if !entryEqual(a.Fallbacks[i], b.Fallbacks[i]) {
			return false
		}
	}
	return true
}

func ragEqual(a, b RAGConfig) bool {
	ta, tb := a.Temperature, b.Temperature
	a.Temperature, b.Temperature = nil, nil
	if a != b {
		return false
	}
	if (ta == nil) != (tb == nil) {
		return false
	}
	return ta == nil || *ta == *tb
}
