// Package model defines the data shapes shared by the sync core: local
// scripts, remote objects, and the remote/local metadata records used to
// reconcile them.
package model

import "encoding/json"

// ScriptProps holds the identity and ordering fields the reconciler reads
// off a local script. Everything else about a script is opaque to the core.
type ScriptProps struct {
	URI          string `json:"uri"`
	LastModified int64  `json:"lastModified,omitempty"`
	Position     int    `json:"position"`
}

// Script is a local user script as seen by the core. Custom and Config are
// carried opaquely except for the config keys the codec knows about
// (enabled, shouldUpdate).
type Script struct {
	ID     string
	Props  ScriptProps
	Custom json.RawMessage
	Config map[string]any
	Code   string
}

// Enabled reports the config.enabled flag, defaulting to true when absent.
func (s *Script) Enabled() bool {
	if s == nil || s.Config == nil {
		return true
	}
	if v, ok := s.Config["enabled"].(bool); ok {
		return v
	}
	return true
}

// RemoteObject identifies a blob held by the provider. Name follows the
// filename convention (vm@2-<uri> or legacy vm-<uri>); provider-specific
// fields beyond Name/URI are opaque to the core.
type RemoteObject struct {
	Name  string
	URI   string
	Extra map[string]any
}

// MetaEntry is one script's record inside the remote meta file.
type MetaEntry struct {
	Modified int64 `json:"modified"`
	Position int   `json:"position,omitempty"`
}

// Meta is the parsed remote meta file: a timestamp epoch plus a per-URI
// index of modification stamps and positions.
type Meta struct {
	Timestamp int64                  `json:"timestamp"`
	Info      map[string]*MetaEntry `json:"info"`
}

// Clone returns a deep copy so callers can mutate without aliasing the
// caller's map.
func (m *Meta) Clone() *Meta {
	if m == nil {
		return &Meta{Info: map[string]*MetaEntry{}}
	}
	out := &Meta{Timestamp: m.Timestamp, Info: make(map[string]*MetaEntry, len(m.Info))}
	for k, v := range m.Info {
		cp := *v
		out.Info[k] = &cp
	}
	return out
}

// LocalMeta is the per-service bookkeeping persisted under
// sync.services.<name>.meta.
type LocalMeta struct {
	Timestamp int64 `json:"timestamp"`
	LastSync  int64 `json:"lastSync"`
}

// PayloadProps is the props sub-object of a script payload blob.
type PayloadProps struct {
	LastUpdated int64 `json:"lastUpdated,omitempty"`
}

// ScriptData is a parsed script payload, version-agnostic.
type ScriptData struct {
	Custom json.RawMessage
	Config map[string]any
	Props  PayloadProps
	Code   string
}
