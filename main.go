// Command likesyncd is the liked-tracks sync daemon: it loads its
// on-disk config, opens the store, builds the two service clients, and
// drives the sync engine on the scheduler's loop while exposing the
// RPC control surface spec.md §4.6 describes. The CLI front end, the
// credential wizard, and the web dashboard are external collaborators
// that talk to this process only through that control socket.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/liketrack/likesyncd/config"
	"github.com/liketrack/likesyncd/logging"
	"github.com/liketrack/likesyncd/rpc"
	"github.com/liketrack/likesyncd/scheduler"
	"github.com/liketrack/likesyncd/servicea"
	"github.com/liketrack/likesyncd/serviceb"
	"github.com/liketrack/likesyncd/store"
	"github.com/liketrack/likesyncd/syncengine"
)

// serviceAAPIBaseURL, serviceATokenURL, and serviceBBaseURL are the two
// services' fixed endpoints. spec.md §9's closed configuration-key set
// has no base_url/token_url keys for either service block — only
// credentials are operator-configurable — so the hosts themselves are
// build-time constants, not config fields.
const (
	serviceAAPIBaseURL = "https://api.service-a.example/v1"
	serviceATokenURL   = "https://accounts.service-a.example/oauth/token"
	serviceBBaseURL    = "https://api.service-b.example/v1"
)

func main() {
	os.Exit(run())
}

func run() int {
	var stateDir, configPath string

	root := &cobra.Command{
		Use:   "likesyncd",
		Short: "Bidirectional liked-tracks sync daemon",
		Long: "likesyncd keeps a user's liked-track library mirrored between " +
			"two music streaming services: it periodically compares each " +
			"service's liked set, resolves cross-service track identity, and " +
			"mirrors additions (and, when enabled, removals) between them.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd.Context(), stateDir, configPath)
		},
	}

	root.PersistentFlags().StringVar(&stateDir, "state-dir", defaultStateDir(), "directory for the store, logs, pid file and control socket")
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to the daemon config file (defaults to <state-dir>/config.yaml)")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var interrupted atomic.Bool
	go func() {
		sig := <-sigCh
		if sig == os.Interrupt {
			interrupted.Store(true)
		}
		cancel()
	}()

	root.SetContext(ctx)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "likesyncd:", err)
		if interrupted.Load() {
			return exitKeyboardInterrupt
		}
		return exitFailure
	}
	if interrupted.Load() {
		return exitKeyboardInterrupt
	}
	return exitSuccess
}

// defaultStateDir is <user config dir>/likesyncd, matching spec.md
// §6's "well-known filesystem path under the user's state directory".
func defaultStateDir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		base = "."
	}
	return filepath.Join(base, "likesyncd")
}

func runDaemon(parentCtx context.Context, stateDir, configPath string) error {
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	if err := os.MkdirAll(stateDir, 0o700); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	if configPath == "" {
		configPath = filepath.Join(stateDir, "config.yaml")
	}

	cfg, warning, err := loadOrInitConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	pidPath := filepath.Join(stateDir, "likesyncd.pid")
	if err := reapStalePID(pidPath); err != nil {
		return err
	}
	if err := writePID(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	sinks := logging.NewSinks(stateDir, logging.ParseLevel(string(cfg.Daemon.LogLevel)))
	defer sinks.Close()
	slog.SetDefault(sinks.Daemon)
	if warning != "" {
		sinks.Daemon.Warn(warning)
	}

	st, err := store.Open(filepath.Join(stateDir, "store"))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	clientA := servicea.New(servicea.Config{
		BaseURL:      serviceAAPIBaseURL,
		TokenURL:     serviceATokenURL,
		ClientID:     cfg.ServiceA.ClientID,
		ClientSecret: string(cfg.ServiceA.ClientSecret),
		RedirectURI:  cfg.ServiceA.RedirectURI,
		RefreshToken: string(cfg.ServiceA.RefreshToken),
	})
	clientB := serviceb.New(serviceb.NewHTTPLibrary(serviceBBaseURL), string(cfg.ServiceB.Token))

	engine := syncengine.New(st, clientA, clientB, syncengine.Config{
		DefaultMode:        cfg.Sync.Mode,
		PropagateDeletions: cfg.Sync.PropagateDeletions,
	})

	sched := scheduler.New(st, engine, scheduler.Config{
		IntervalSeconds: cfg.Sync.IntervalMinutes * 60,
		DefaultMode:     cfg.Sync.Mode,
		Logger:          sinks.Sync,
	})

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	var shutdownOnce sync.Once
	shutdown := func() { shutdownOnce.Do(cancel) }

	socketPath := filepath.Join(stateDir, "likesyncd.sock")
	handler := rpc.NewHandler(rpc.Daemon{
		Scheduler:    sched,
		Engine:       engine,
		Store:        st,
		ShutdownFunc: shutdown,
	})
	server, err := rpc.NewServer(socketPath, handler)
	if err != nil {
		sched.Stop()
		return fmt.Errorf("start rpc server: %w", err)
	}

	serveErrCh := make(chan error, 1)
	go func() { serveErrCh <- server.Serve() }()

	slog.Info("likesyncd started", "state_dir", stateDir, "interval_minutes", cfg.Sync.IntervalMinutes, "mode", cfg.Sync.Mode)

	select {
	case <-ctx.Done():
	case err := <-serveErrCh:
		if err != nil {
			slog.Error("rpc server stopped unexpectedly", "error", err)
		}
	}

	slog.Info("likesyncd shutting down")
	server.Close()
	sched.Stop()
	return nil
}

// loadOrInitConfig loads path, writing spec.md §9's documented
// defaults first if no config file exists yet — the credential wizard
// and CLI front end are the out-of-scope collaborators that would
// normally populate the service credential blocks afterward.
func loadOrInitConfig(path string) (*config.Config, string, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		defaults := config.Default()
		if err := config.Save(path, defaults); err != nil {
			return nil, "", fmt.Errorf("write default config: %w", err)
		}
	}
	return config.Load(path)
}
