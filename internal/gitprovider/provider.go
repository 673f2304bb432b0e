// Package gitprovider is a reference provider.Provider backed by a git
// repository (spec.md's provider transports are officially out of scope,
// but a git-backed store plays the same demo/test role the teacher's own
// LocalStore does): every script is a file, the remote meta is a single
// JSON file, and every mutation is committed and optionally pushed.
package gitprovider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"

	"github.com/kt3k/vmsync/internal/apperrors"
	"github.com/kt3k/vmsync/internal/model"
	"github.com/kt3k/vmsync/internal/scriptcodec"
)

const (
	scriptsDir = "scripts"
	metaFile   = "meta.json"

	dirPerm  = 0o750
	filePerm = 0o600
)

// RemoteConfig describes an optional git remote to push commits to. A nil
// *RemoteConfig means the provider is local-only (init but never push),
// the same "remote optional" shape internal/store/remote.go models.
type RemoteConfig struct {
	URL      string
	Branch   string
	Username string
	Password string
}

func (r *RemoteConfig) auth() (transport.AuthMethod, error) {
	if r == nil {
		return nil, nil
	}
	if r.Password == "" {
		if strings.HasPrefix(strings.ToLower(r.URL), "https://") {
			return nil, apperrors.ErrHTTPSPasswordRequired
		}
		return nil, nil
	}
	return &http.BasicAuth{Username: r.Username, Password: r.Password}, nil
}

// Provider stores scripts and metadata as files in a git worktree.
type Provider struct {
	name        string
	displayName string
	rootPath    string
	repo        *git.Repository
	remote      *RemoteConfig
	logger      *slog.Logger

	mu sync.Mutex
}

// Option configures a Provider.
type Option func(*Provider)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) { p.logger = l }
}

// WithDisplayName sets the human-facing label returned by DisplayName. Left
// unset, DisplayName falls back to the machine name.
func WithDisplayName(displayName string) Option {
	return func(p *Provider) { p.displayName = displayName }
}

// WithRemote configures a git remote commits are pushed to after each
// mutation. Without this option the provider is a local-only git repo.
func WithRemote(cfg RemoteConfig) Option {
	return func(p *Provider) { p.remote = &cfg }
}

// New opens (or initializes) a git repository at rootPath.
func New(name, rootPath string, opts ...Option) (*Provider, error) {
	p := &Provider{name: name, rootPath: rootPath, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}

	if err := os.MkdirAll(filepath.Join(rootPath, scriptsDir), dirPerm); err != nil {
		return nil, fmt.Errorf("gitprovider: mkdir: %w", err)
	}

	repo, err := git.PlainOpen(rootPath)
	if err != nil {
		if err != git.ErrRepositoryNotExists {
			return nil, fmt.Errorf("gitprovider: open repo: %w", err)
		}
		repo, err = git.PlainInit(rootPath, false)
		if err != nil {
			return nil, fmt.Errorf("gitprovider: init repo: %w", err)
		}
	}
	p.repo = repo

	if p.remote != nil {
		if err := p.ensureRemote(); err != nil {
			return nil, err
		}
	}

	return p, nil
}

func (p *Provider) ensureRemote() error {
	_, err := p.repo.Remote("origin")
	if err == nil {
		return nil
	}
	_, err = p.repo.CreateRemote(&gitconfig.RemoteConfig{
		Name: "origin",
		URLs: []string{p.remote.URL},
	})
	if err != nil {
		return fmt.Errorf("gitprovider: add remote: %w", err)
	}
	return nil
}

// diskName maps a logical scriptcodec filename (which may contain slashes
// or colons when the URI is itself a URL) to a single flat path component
// safe to write directly under scriptsDir.
func diskName(logicalName string) string {
	return url.QueryEscape(logicalName)
}

// logicalName reverses diskName, falling back to the raw entry name if it
// was never escaped (defensive against manually dropped-in files).
func logicalName(entryName string) string {
	decoded, err := url.QueryUnescape(entryName)
	if err != nil {
		return entryName
	}
	return decoded
}

// Name implements provider.Provider.
func (p *Provider) Name() string { return p.name }

// DisplayName implements provider.Provider.
func (p *Provider) DisplayName() string {
	if p.displayName != "" {
		return p.displayName
	}
	return p.name
}

// Properties implements provider.Provider.
func (p *Provider) Properties() map[string]any {
	props := map[string]any{"rootPath": p.rootPath}
	if p.remote != nil {
		props["remoteURL"] = p.remote.URL
		props["branch"] = p.remote.Branch
	}
	return props
}

// GetUserConfig implements provider.Provider. The git remote's URL and
// branch are the only user-editable settings this provider exposes; the
// password is a credential, not config, and is never echoed back.
func (p *Provider) GetUserConfig() map[string]any {
	if p.remote == nil {
		return map[string]any{}
	}
	return map[string]any{
		"remoteURL": p.remote.URL,
		"branch":    p.remote.Branch,
		"username":  p.remote.Username,
	}
}

// RateLimitDelay implements provider.Provider. Local filesystem access
// needs no throttling.
func (p *Provider) RateLimitDelay() time.Duration { return 0 }

// List implements provider.Provider.
func (p *Provider) List(ctx context.Context) ([]model.RemoteObject, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entries, err := os.ReadDir(filepath.Join(p.rootPath, scriptsDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("gitprovider: list: %w", err)
	}

	out := make([]model.RemoteObject, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := logicalName(e.Name())
		uri, ok := scriptcodec.ParseURI(name)
		if !ok {
			continue
		}
		out = append(out, model.RemoteObject{Name: name, URI: uri})
	}
	return out, nil
}

// GetMeta implements provider.Provider.
func (p *Provider) GetMeta(ctx context.Context) (*model.Meta, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	data, err := os.ReadFile(filepath.Join(p.rootPath, metaFile))
	if err != nil {
		if os.IsNotExist(err) {
			return &model.Meta{Info: map[string]*model.MetaEntry{}}, nil
		}
		return nil, fmt.Errorf("gitprovider: read meta: %w", err)
	}

	var meta model.Meta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, apperrors.New(apperrors.KindDecode, fmt.Errorf("gitprovider: parse meta: %w", err))
	}
	if meta.Info == nil {
		meta.Info = map[string]*model.MetaEntry{}
	}
	return &meta, nil
}

// PutMeta implements provider.Provider.
func (p *Provider) PutMeta(ctx context.Context, meta *model.Meta) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("gitprovider: marshal meta: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := os.WriteFile(filepath.Join(p.rootPath, metaFile), data, filePerm); err != nil {
		return fmt.Errorf("gitprovider: write meta: %w", err)
	}
	return p.commitAndPush(ctx, metaFile, "update sync metadata")
}

// FetchScript implements provider.Provider.
func (p *Provider) FetchScript(ctx context.Context, obj model.RemoteObject) (model.ScriptData, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	blob, err := os.ReadFile(filepath.Join(p.rootPath, scriptsDir, diskName(obj.Name)))
	if err != nil {
		return model.ScriptData{}, fmt.Errorf("gitprovider: fetch %s: %w", obj.URI, err)
	}
	return scriptcodec.Parse(blob), nil
}

// PutScript implements provider.Provider. Writes always use the v1 wire
// shape for cross-client compatibility (spec.md §4.1, §4.6 putRemote); v2
// is a read-only format this provider only ever parses, never emits.
func (p *Provider) PutScript(ctx context.Context, uri string, data model.ScriptData) (model.RemoteObject, error) {
	blob, err := scriptcodec.EncodeV1(data)
	if err != nil {
		return model.RemoteObject{}, fmt.Errorf("gitprovider: encode %s: %w", uri, err)
	}

	name := scriptcodec.Filename("", uri)
	disk := diskName(name)

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := os.WriteFile(filepath.Join(p.rootPath, scriptsDir, disk), blob, filePerm); err != nil {
		return model.RemoteObject{}, fmt.Errorf("gitprovider: write %s: %w", uri, err)
	}
	if err := p.commitAndPush(ctx, filepath.Join(scriptsDir, disk), "update "+uri); err != nil {
		return model.RemoteObject{}, err
	}
	return model.RemoteObject{Name: name, URI: uri}, nil
}

// DeleteScript implements provider.Provider.
func (p *Provider) DeleteScript(ctx context.Context, obj model.RemoteObject) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	disk := diskName(obj.Name)
	path := filepath.Join(p.rootPath, scriptsDir, disk)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("gitprovider: delete %s: %w", obj.URI, err)
	}
	return p.commitRemovalAndPush(ctx, filepath.Join(scriptsDir, disk), "delete "+obj.URI)
}

// commitAndPush stages relPath, commits, and pushes if a remote is
// configured. Caller must hold p.mu.
func (p *Provider) commitAndPush(ctx context.Context, relPath, message string) error {
	worktree, err := p.repo.Worktree()
	if err != nil {
		return fmt.Errorf("gitprovider: worktree: %w", err)
	}

	if _, err := worktree.Add(relPath); err != nil {
		return fmt.Errorf("gitprovider: add %s: %w", relPath, err)
	}

	return p.commitAndMaybePush(ctx, worktree, message)
}

// commitRemovalAndPush stages the removal of relPath (already deleted from
// disk), commits, and pushes if a remote is configured. Caller must hold
// p.mu.
func (p *Provider) commitRemovalAndPush(ctx context.Context, relPath, message string) error {
	worktree, err := p.repo.Worktree()
	if err != nil {
		return fmt.Errorf("gitprovider: worktree: %w", err)
	}

	if _, err := worktree.Remove(relPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("gitprovider: remove %s: %w", relPath, err)
	}

	return p.commitAndMaybePush(ctx, worktree, message)
}

func (p *Provider) commitAndMaybePush(ctx context.Context, worktree *git.Worktree, message string) error {
	_, err := worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{Name: "vmsync", Email: "vmsync@localhost", When: time.Now()},
	})
	if err != nil {
		if errors.Is(err, git.ErrEmptyCommit) {
			return nil
		}
		return fmt.Errorf("gitprovider: commit: %w", err)
	}

	if p.remote == nil {
		return nil
	}

	auth, err := p.remote.auth()
	if err != nil {
		return err
	}

	if pushErr := p.repo.PushContext(ctx, &git.PushOptions{RemoteName: "origin", Auth: auth}); pushErr != nil {
		if errors.Is(pushErr, git.NoErrAlreadyUpToDate) {
			return nil
		}
		return fmt.Errorf("gitprovider: push: %w", pushErr)
	}
	return nil
}
