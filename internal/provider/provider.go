// Package provider defines the outbound contract to a sync backend and a
// BaseService that wraps any Provider with rate limiting, auth/sync state
// tracking, and debounced sync scheduling (spec.md §4.4/§6.2).
package provider

import (
	"context"
	"time"

	"github.com/kt3k/vmsync/internal/model"
)

// Provider is what a concrete backend (Google Drive, a git remote, a local
// directory) implements to plug into the sync core. It is intentionally
// narrow: transport, auth flow and rate-limit tuning are the provider's own
// business, everything else routes through this interface.
type Provider interface {
	// Name identifies the provider for logging and config scoping.
	Name() string

	// RateLimitDelay is the minimum spacing between requests this provider
	// wants enforced. A provider fronting a generous API can return 0.
	RateLimitDelay() time.Duration

	// List enumerates the remote objects currently present.
	List(ctx context.Context) ([]model.RemoteObject, error)

	// GetMeta fetches the single remote metadata file. A provider with no
	// meta file yet should return an empty, zero-timestamp *model.Meta and
	// a nil error (first sync).
	GetMeta(ctx context.Context) (*model.Meta, error)

	// PutMeta overwrites the remote metadata file.
	PutMeta(ctx context.Context, meta *model.Meta) error

	// FetchScript downloads and decodes one remote object's payload.
	FetchScript(ctx context.Context, obj model.RemoteObject) (model.ScriptData, error)

	// PutScript uploads a script payload under the given URI, returning the
	// resulting remote object (its assigned Name in particular).
	PutScript(ctx context.Context, uri string, data model.ScriptData) (model.RemoteObject, error)

	// DeleteScript removes a remote object.
	DeleteScript(ctx context.Context, obj model.RemoteObject) error

	// DisplayName is the human-facing label for this provider, distinct
	// from the machine-facing Name used for config scoping.
	DisplayName() string

	// Properties returns static, read-only metadata about this provider
	// instance (e.g. its storage location or account), for UI display.
	Properties() map[string]any

	// GetUserConfig returns the provider's current user-configurable
	// settings (spec.md §6.2's getUserConfig/setUserConfig pair).
	GetUserConfig() map[string]any
}

// Authenticator is an optional capability a Provider implements when it has
// an interactive or token-based authorization flow (spec.md §6.2's
// authorize/revoke operations). Providers that need no auth (e.g. a local
// directory) simply don't implement it.
type Authenticator interface {
	// CheckAuthURL returns the URL the user should visit to authorize, or
	// "" if the provider doesn't use a redirect flow.
	CheckAuthURL(ctx context.Context) (string, error)
	// Authorize completes the auth flow given whatever token/code the
	// frontend collected.
	Authorize(ctx context.Context, credential string) error
	// Revoke forgets any stored credential.
	Revoke(ctx context.Context) error
}

// Coordinator is the subset of internal/registry.SyncManager a BaseService
// needs, kept as a narrow interface here to avoid an import cycle (registry
// imports provider to hold instances of BaseService).
type Coordinator interface {
	// IsCurrent reports whether the named service is the active one; a
	// non-current service's sync requests are dropped rather than queued.
	IsCurrent(name string) bool
	// Enqueue runs task on the single process-wide work chain, guaranteeing
	// at most one sync runs at a time across every service.
	Enqueue(task func())
	// NotifyChanged tells the coordinator that a service's state changed,
	// for it to fan out to internal/notify.
	NotifyChanged()
}
