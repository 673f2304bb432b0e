// Package cmd provides the CLI commands for vmsync.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/v2"
	"github.com/urfave/cli/v3"

	"github.com/kt3k/vmsync/internal/apperrors"
	"github.com/kt3k/vmsync/internal/gitprovider"
	"github.com/kt3k/vmsync/internal/model"
	"github.com/kt3k/vmsync/internal/notify"
	"github.com/kt3k/vmsync/internal/provider"
	"github.com/kt3k/vmsync/internal/registry"
	"github.com/kt3k/vmsync/internal/scriptstore"
	"github.com/kt3k/vmsync/internal/syncconfig"
	"github.com/kt3k/vmsync/internal/version"
)

// Default values shared by several commands.
const (
	defaultConfigFile   = "vmsync.json"
	defaultStorePath    = "vmsync-data"
	defaultProviderName = "local"
	defaultServePort    = 8080
)

// konfig is the global koanf instance, populated from VMSYNC_-prefixed
// environment variables the same way the reference loads NTN_-prefixed ones.
var konfig = koanf.New(".")

// verboseFlag is the shared verbose flag for all commands.
var verboseFlag = &cli.BoolFlag{
	Name:  "verbose",
	Usage: "Enable verbose logging",
}

// setupLogging configures the global logger based on the verbose flag,
// mirroring the reference's text/JSON slog.Handler switch.
func setupLogging(cmd *cli.Command) {
	level := slog.LevelInfo
	if cmd.Bool("verbose") {
		level = slog.LevelDebug
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(os.Getenv("VMSYNC_LOG_FORMAT")) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))

	if level == slog.LevelDebug {
		slog.Debug("verbose logging enabled")
	}
}

// NewApp creates the CLI application.
func NewApp() *cli.Command {
	return &cli.Command{
		Name:    "vmsync",
		Usage:   "Reconcile local user scripts against a remote store",
		Version: version.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the option-store config file",
				Value:   defaultConfigFile,
				Sources: cli.EnvVars("VMSYNC_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "store-path",
				Aliases: []string{"s"},
				Usage:   "Path to the git-backed provider's working tree",
				Value:   defaultStorePath,
				Sources: cli.EnvVars("VMSYNC_DIR"),
			},
			&cli.StringFlag{
				Name:  "provider-name",
				Usage: "Name the git-backed provider registers under",
				Value: defaultProviderName,
			},
			&cli.StringFlag{
				Name:  "provider-display-name",
				Usage: "Human-facing label for the provider (defaults to provider-name)",
			},
			&cli.StringFlag{
				Name:    "remote-url",
				Usage:   "Git remote URL to push commits to (optional)",
				Sources: cli.EnvVars("VMSYNC_GIT_URL"),
			},
			&cli.StringFlag{
				Name:    "remote-branch",
				Usage:   "Git remote branch",
				Value:   "main",
				Sources: cli.EnvVars("VMSYNC_GIT_BRANCH"),
			},
			&cli.StringFlag{
				Name:    "remote-user",
				Usage:   "Git remote username",
				Sources: cli.EnvVars("VMSYNC_GIT_USER"),
			},
			&cli.StringFlag{
				Name:    "remote-pass",
				Usage:   "Git remote password/token",
				Sources: cli.EnvVars("VMSYNC_GIT_PASS"),
			},
			verboseFlag,
		},
		Before: func(ctx context.Context, _ *cli.Command) (context.Context, error) {
			if err := konfig.Load(env.Provider(".", env.Opt{Prefix: "VMSYNC_"}), nil); err != nil {
				return ctx, fmt.Errorf("load env: %w", err)
			}
			return ctx, nil
		},
		Commands: []*cli.Command{
			providersCommand(),
			useCommand(),
			authorizeCommand(),
			revokeCommand(),
			addCommand(),
			listCommand(),
			syncCommand(),
			statusCommand(),
			serveCommand(),
		},
	}
}

// app bundles the runtime built from CLI flags, so each Action only needs
// one setup call.
type app struct {
	manager      *registry.SyncManager
	facade       *syncconfig.Facade
	providerName string
	local        scriptstore.Store
}

// setupApp builds the option store, registers the git-backed provider, and
// wires it into a SyncManager. Every command shares this bootstrap.
func setupApp(cmd *cli.Command) (*app, error) {
	configPath := cmd.String("config")
	store, err := syncconfig.NewFileOptionStore(configPath, slog.Default())
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	facade := syncconfig.NewFacade(store)
	manager := registry.NewSyncManager(facade, slog.Default())

	name := cmd.String("provider-name")
	storePath := cmd.String("store-path")

	opts := []gitprovider.Option{gitprovider.WithLogger(slog.Default())}
	if displayName := cmd.String("provider-display-name"); displayName != "" {
		opts = append(opts, gitprovider.WithDisplayName(displayName))
	}
	if remoteURL := cmd.String("remote-url"); remoteURL != "" {
		opts = append(opts, gitprovider.WithRemote(gitprovider.RemoteConfig{
			URL:      remoteURL,
			Branch:   cmd.String("remote-branch"),
			Username: cmd.String("remote-user"),
			Password: cmd.String("remote-pass"),
		}))
	}

	gp, err := gitprovider.New(name, storePath, opts...)
	if err != nil {
		return nil, fmt.Errorf("open git provider: %w", err)
	}

	local, err := scriptstore.NewFileStore(filepath.Join(storePath, "local-scripts.json"), slog.Default())
	if err != nil {
		return nil, fmt.Errorf("open local script store: %w", err)
	}

	localMeta := syncconfig.NewLocalMetaStore(facade.ForService(name))
	svc := provider.New(gp, local, localMeta, manager, slog.Default())
	svc.SetSyncScriptStatus(func() bool {
		v, ok := store.Get("syncScriptStatus")
		if !ok {
			return true
		}
		b, ok := v.(bool)
		if !ok {
			return true
		}
		return b
	})
	if err := manager.Register(name, svc); err != nil {
		return nil, fmt.Errorf("register provider: %w", err)
	}

	return &app{manager: manager, facade: facade, providerName: name, local: local}, nil
}

func withLogging(action func(context.Context, *cli.Command) error) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		setupLogging(cmd)
		return action(ctx, cmd)
	}
}

// providersCommand lists every registered provider's auth/sync state.
func providersCommand() *cli.Command {
	return &cli.Command{
		Name:  "providers",
		Usage: "List registered providers and their auth/sync state",
		Flags: []cli.Flag{verboseFlag},
		Action: withLogging(func(_ context.Context, cmd *cli.Command) error {
			a, err := setupApp(cmd)
			if err != nil {
				return err
			}
			current, _ := a.manager.Current()
			displayStates(a.manager.GetStates(), current)
			return nil
		}),
	}
}

// useCommand switches the current provider.
func useCommand() *cli.Command {
	return &cli.Command{
		Name:      "use",
		Usage:     "Set the current provider",
		ArgsUsage: "<name>",
		Flags:     []cli.Flag{verboseFlag},
		Action: withLogging(func(_ context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() < 1 {
				return apperrors.ErrProviderNameRequired
			}
			a, err := setupApp(cmd)
			if err != nil {
				return err
			}
			name := cmd.Args().Get(0)
			if err := a.manager.SetCurrent(name); err != nil {
				return fmt.Errorf("use %s: %w", name, err)
			}
			slog.Info("current provider set", "name", name)
			return nil
		}),
	}
}

// authorizeCommand runs a provider's auth flow. Without a credential
// argument it prints the auth URL the way an OAuth-style provider would.
func authorizeCommand() *cli.Command {
	return &cli.Command{
		Name:      "authorize",
		Usage:     "Authorize a provider, optionally supplying a credential",
		ArgsUsage: "<name> [credential]",
		Flags:     []cli.Flag{verboseFlag},
		Action: withLogging(func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() < 1 {
				return apperrors.ErrProviderNameRequired
			}
			a, err := setupApp(cmd)
			if err != nil {
				return err
			}
			name := cmd.Args().Get(0)

			if cmd.Args().Len() < 2 {
				url, err := a.manager.CheckAuthURL(ctx, name)
				if err != nil {
					return fmt.Errorf("authorize %s: %w", name, err)
				}
				if url == "" {
					fmt.Println("provider does not require a separate authorization step")
					return nil
				}
				fmt.Printf("visit %s, then run 'authorize %s <credential>'\n", url, name)
				return nil
			}

			credential := cmd.Args().Get(1)
			if err := a.manager.Authorize(ctx, name, credential); err != nil {
				return fmt.Errorf("authorize %s: %w", name, err)
			}
			slog.Info("provider authorized", "name", name)
			return nil
		}),
	}
}

// revokeCommand forgets a provider's stored credential.
func revokeCommand() *cli.Command {
	return &cli.Command{
		Name:      "revoke",
		Usage:     "Revoke a provider's stored credential",
		ArgsUsage: "<name>",
		Flags:     []cli.Flag{verboseFlag},
		Action: withLogging(func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() < 1 {
				return apperrors.ErrProviderNameRequired
			}
			a, err := setupApp(cmd)
			if err != nil {
				return err
			}
			name := cmd.Args().Get(0)
			if err := a.manager.Revoke(ctx, name); err != nil {
				return fmt.Errorf("revoke %s: %w", name, err)
			}
			slog.Info("provider revoked", "name", name)
			return nil
		}),
	}
}

// addCommand seeds a local script from a file, for demo/test setup — the
// git-backed provider has no way to originate scripts on its own.
func addCommand() *cli.Command {
	return &cli.Command{
		Name:      "add",
		Usage:     "Add a local script from a file",
		ArgsUsage: "<uri> <file>",
		Flags:     []cli.Flag{verboseFlag},
		Action: withLogging(func(_ context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() < 2 {
				return apperrors.ErrURIAndFileRequired
			}
			uri := cmd.Args().Get(0)
			path := cmd.Args().Get(1)

			code, err := os.ReadFile(path) //nolint:gosec // path is an explicit CLI argument
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}

			a, err := setupApp(cmd)
			if err != nil {
				return err
			}

			script := &model.Script{
				Props: model.ScriptProps{URI: uri, Position: len(a.local.List())},
				Code:  string(code),
			}
			if err := a.local.Update(script); err != nil {
				return fmt.Errorf("add script: %w", err)
			}
			slog.Info("script added", "uri", uri, "id", script.ID)
			return nil
		}),
	}
}

// listCommand lists local scripts.
func listCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List local scripts",
		Flags: []cli.Flag{verboseFlag},
		Action: withLogging(func(_ context.Context, cmd *cli.Command) error {
			a, err := setupApp(cmd)
			if err != nil {
				return err
			}
			displayScripts(a.local.List())
			return nil
		}),
	}
}

// syncCommand runs a synchronous reconciliation round on the current
// provider, optionally previewing it with --dry-run.
func syncCommand() *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Reconcile local scripts against the current provider",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Show what would change without applying it",
			},
			verboseFlag,
		},
		Action: withLogging(func(ctx context.Context, cmd *cli.Command) error {
			a, err := setupApp(cmd)
			if err != nil {
				return err
			}

			if cmd.Bool("dry-run") {
				plan, err := a.manager.PlanCurrent(ctx)
				if err != nil {
					return fmt.Errorf("plan sync: %w", err)
				}
				displayPlan(plan)
				return nil
			}

			if err := a.manager.CheckSyncNow(ctx); err != nil {
				return fmt.Errorf("sync: %w", err)
			}
			slog.Info("sync complete")
			return nil
		}),
	}
}

// statusCommand shows the current provider and every provider's state.
func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show provider and sync status",
		Flags: []cli.Flag{verboseFlag},
		Action: withLogging(func(_ context.Context, cmd *cli.Command) error {
			a, err := setupApp(cmd)
			if err != nil {
				return err
			}
			current, ok := a.manager.Current()
			displayStatus(a.manager.GetStates(), current, ok, len(a.local.List()))
			return nil
		}),
	}
}

// serveCommand starts the registry's work chain plus the notify HTTP server.
func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the sync dispatcher and the notify HTTP server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "HTTP port to listen on",
				Value:   defaultServePort,
				Sources: cli.EnvVars("VMSYNC_PORT"),
			},
			verboseFlag,
		},
		Action: withLogging(func(ctx context.Context, cmd *cli.Command) error {
			a, err := setupApp(cmd)
			if err != nil {
				return err
			}

			broadcaster := notify.NewBroadcaster(func() any {
				current, _ := a.manager.Current()
				return map[string]any{"current": current, "states": a.manager.GetStates()}
			}, slog.Default())
			a.manager.OnChanged(broadcaster.Changed)

			server := notify.NewServer(fmt.Sprintf(":%d", cmd.Int("port")), broadcaster, slog.Default())

			errCh := make(chan error, 1)
			go func() { errCh <- server.Start(ctx) }()

			slog.InfoContext(ctx, "vmsync serving", "port", cmd.Int("port"), "version", version.Version)
			a.manager.Start(ctx)

			return <-errCh
		}),
	}
}
