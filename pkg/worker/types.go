package worker

import "encoding/json"

// Health is the worker's self-reported state, completed with the paths the
// host prepared for it.
type Health struct {
	Running        bool            `json:"running"`
	LastError      *string         `json:"lastError"`
	Providers      json.RawMessage `json:"providers"`
	LogPath        string          `json:"logPath,omitempty"`
	ProfileRoot    string          `json:"profileRoot,omitempty"`
	ActiveProvider *string         `json:"activeProvider"`
	Bridge         json.RawMessage `json:"bridge,omitempty"`
}

// ParseHealth decodes a health result leniently: anything that is not a
// health object yields a bare running report. Missing paths come from p.
func ParseHealth(raw json.RawMessage, p Paths) Health {
	var h Health
	if err := json.Unmarshal(raw, &h); err != nil {
		h = Health{}
	}
	h.Running = true
	if len(h.Providers) == 0 || string(h.Providers) == "null" {
		h.Providers = json.RawMessage("{}")
	}
	if h.LogPath == "" {
		h.LogPath = p.LogPath
	}
	if h.ProfileRoot == "" {
		h.ProfileRoot = p.ProfileRoot
	}
	return h
}

// StoppedHealth reports a worker that is not running.
func StoppedHealth(p Paths) Health {
	return Health{
		Running:     false,
		Providers:   json.RawMessage("{}"),
		LogPath:     p.LogPath,
		ProfileRoot: p.ProfileRoot,
	}
}

// ProviderRunMeta describes how a provider run was carried out.
type ProviderRunMeta struct {
	Provider           string  `json:"provider"`
	URL                *string `json:"url,omitempty"`
	StartedAt          *string `json:"startedAt,omitempty"`
	FinishedAt         *string `json:"finishedAt,omitempty"`
	ElapsedMs          *uint64 `json:"elapsedMs,omitempty"`
	ExtractionStrategy *string `json:"extractionStrategy,omitempty"`
}

// ProviderRunResult is the answer to provider/run.
type ProviderRunResult struct {
	OK        bool             `json:"ok"`
	Text      *string          `json:"text,omitempty"`
	Raw       json.RawMessage  `json:"raw,omitempty"`
	Meta      *ProviderRunMeta `json:"meta,omitempty"`
	Error     *string          `json:"error,omitempty"`
	ErrorCode *string          `json:"errorCode,omitempty"`
}
