// Package main is the entry point for the chatnotifyd notification agent.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jmylchreest/chatnotify/internal/agent"
	"github.com/jmylchreest/chatnotify/internal/audio"
	"github.com/jmylchreest/chatnotify/internal/clients"
	"github.com/jmylchreest/chatnotify/internal/config"
	"github.com/jmylchreest/chatnotify/internal/daemon"
	"github.com/jmylchreest/chatnotify/internal/dbus"
	"github.com/jmylchreest/chatnotify/internal/model"
	"github.com/jmylchreest/chatnotify/internal/notify"
	"github.com/jmylchreest/chatnotify/internal/outbox"
	"github.com/jmylchreest/chatnotify/internal/permission"
	"github.com/jmylchreest/chatnotify/internal/push"
	"github.com/jmylchreest/chatnotify/internal/router"
	"github.com/jmylchreest/chatnotify/internal/store"
)

var (
	// Build-time variables
	version = "dev"
)

func main() {
	configPath := flag.String("config", "", "Path to the config file (default ~/.config/chatnotify/chatnotifyd.toml)")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("chatnotifyd version", version)
		os.Exit(0)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	if err := run(*configPath, logger); err != nil {
		logger.Error("chatnotifyd failed", "error", err)
		os.Exit(1)
	}
}

// paths holds the files chatnotifyd reads and writes.
type paths struct {
	config  string
	history string
	state   string
	outbox  string
}

func resolvePaths(configPath string) (paths, error) {
	var p paths
	var err error
	if configPath == "" {
		if configPath, err = config.ConfigPath(); err != nil {
			return p, err
		}
	}
	p.config = config.ExpandPath(configPath)
	if err := config.EnsureDataDir(); err != nil {
		return p, err
	}
	if p.history, err = config.HistoryPath(); err != nil {
		return p, err
	}
	if p.state, err = config.StatePath(); err != nil {
		return p, err
	}
	if p.outbox, err = config.OutboxPath(); err != nil {
		return p, err
	}
	return p, nil
}

// unavailableServer stands in for the notification server when the session
// bus cannot be reached. The dispatcher never calls it because the gate
// reports notifications unsupported.
type unavailableServer struct{}

func (unavailableServer) Notify(context.Context, dbus.Notification) (uint32, error) {
	return 0, dbus.ErrNoServer
}

func (unavailableServer) CloseNotification(context.Context, uint32) error {
	return dbus.ErrNoServer
}

func run(configPath string, logger *slog.Logger) error {
	logger.Info("starting chatnotifyd", "version", version)

	p, err := resolvePaths(configPath)
	if err != nil {
		return fmt.Errorf("resolve paths: %w", err)
	}

	cfg, err := config.LoadConfig(p.config)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.Info("config loaded", "path", p.config, "policy", cfg.Dispatch.Policy, "listen", cfg.Server.Listen)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Session bus and the one-time capability check
	var server notify.NotificationServer = unavailableServer{}
	client, err := dbus.ConnectSession(logger)
	supported := false
	if err != nil {
		logger.Warn("session bus unavailable, notifications disabled", "error", err)
	} else {
		checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		supported = client.Available(checkCtx)
		cancel()
		if supported {
			server = client
			if info, err := client.ServerInformation(ctx); err == nil {
				logger.Info("notification server found", "name", info.Name, "vendor", info.Vendor, "version", info.Version)
			}
		} else {
			logger.Warn("no notification server on the session bus, notifications disabled")
		}
	}

	// Permission
	stateFile := store.NewStateFile(p.state)
	var prompter permission.Prompter = permission.StaticPrompter{Grant: cfg.Permission.AutoGrant}
	if cfg.Permission.Prompt == config.PromptDBus && supported {
		prompter = permission.NewDBusPrompter(client, cfg.App.Name, cfg.Permission.Timeout.Duration(), logger)
	}
	gate, err := permission.NewGate(supported, stateFile, prompter, logger)
	if err != nil {
		return fmt.Errorf("load permission: %w", err)
	}
	logger.Info("permission loaded", "state", gate.State(), "supported", supported)

	// History
	persistence, err := store.NewJSONLPersistence(p.history)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	history := store.NewStore(persistence)
	defer history.Close()
	if err := history.Hydrate(); err != nil {
		logger.Warn("failed to hydrate history", "error", err)
	}
	if cfg.History.MaxLength > 0 {
		if removed, err := history.Prune(cfg.History.MaxLength); err != nil {
			logger.Warn("failed to prune history", "error", err)
		} else if removed > 0 {
			logger.Info("pruned history", "removed", removed)
		}
	}
	logger.Info("history loaded", "path", p.history, "count", history.Count())

	// Display
	backend := notify.NewDBusBackend(server, cfg.App.Name, cfg.Dispatch.Timeout.Duration(), cfg.ResolveIcon)
	dispatcher, err := notify.NewDispatcher(backend, gate, cfg.Dispatch.Policy, logger)
	if err != nil {
		return err
	}
	dispatcher.SetHistory(history)

	internal := daemon.NewInternalNotifier(backend, logger)
	internal.SetEnabled(supported)

	sounds := audio.NewManager(cfg, logger)
	sounds.OnError = internal.NotifyAudioError
	if err := sounds.Start(); err != nil {
		logger.Warn("failed to watch sound files", "error", err)
	}
	defer sounds.Stop()
	dispatcher.SetSoundPlayer(sounds)

	// Windows
	opener := clients.CommandOpener{Command: cfg.App.Opener, Resolve: cfg.ResolveURL}
	windows := clients.NewRegistry(opener, cfg.Server.AllowedOrigins, logger)
	defer windows.Close()
	windows.OnAttach(gate.OnInteraction())
	dispatcher.SetFocusReporter(windows)

	// Outbound queue
	queue := store.NewOutbox(p.outbox)
	resender := outbox.NewResender(queue,
		outbox.NewHTTPSender(cfg.Sync.Endpoint, cfg.Sync.RequestTimeout.Duration()),
		resendPolicy(cfg), logger)
	resender.OnFailed = internal.NotifyDeliveryFailed

	// Agent
	a := agent.New(dispatcher, router.New(windows, logger),
		agent.WithHistory(history),
		agent.WithSyncer(resender),
		agent.WithLogger(logger),
	)
	if err := a.Dispatch(ctx, agent.InstallEvent{}); err != nil {
		return fmt.Errorf("install agent: %w", err)
	}

	// Session bus service
	var service *dbus.Service
	if client != nil {
		service = dbus.NewService(daemon.NewServiceHandler(gate, dispatcher), cfg.Permission.Timeout.Duration()+30*time.Second, logger)
		if err := service.Start(client.Conn()); err != nil {
			logger.Warn("failed to export session bus service", "error", err)
			internal.NotifySurfaceUnavailable("session bus service", err)
			service = nil
		} else {
			defer service.Stop()
		}
	}

	if cfg.Dispatch.WelcomeOnGrant {
		gate.OnChange(daemon.NewWelcomer(dispatcher, stateFile, logger).OnPermissionChange)
	}
	gate.OnChange(func(_ context.Context, from, to model.PermissionState) {
		logger.Info("permission changed", "from", from, "to", to)
		if service != nil {
			if err := service.EmitPermissionChanged(to); err != nil {
				logger.Debug("failed to emit permission change", "error", err)
			}
		}
	})

	// Hot reload
	reloader := daemon.NewReloader(p.config, p.state, cfg, internal, logger)
	reloader.OnConfig(func(c *config.Config) {
		if err := dispatcher.SetPolicy(c.Dispatch.Policy); err != nil {
			logger.Warn("ignoring dispatch policy", "error", err)
		}
		sounds.UpdateConfig(c)
		resender.SetPolicy(resendPolicy(c))
	})
	reloader.OnStateChange(func() {
		if err := gate.Reload(); err != nil {
			logger.Warn("failed to reload permission", "error", err)
		}
	})
	if err := reloader.Start(); err != nil {
		logger.Warn("hot reload disabled", "error", err)
	}
	defer reloader.Stop()

	if watcher, err := store.NewHistoryWatcher(history, p.history, logger); err != nil {
		logger.Warn("failed to watch history", "error", err)
	} else if err := watcher.Start(); err != nil {
		logger.Warn("failed to watch history", "error", err)
	} else {
		defer watcher.Stop()
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return serveHTTP(gctx, push.NewServer(a, queue, windows, logger), cfg.Server.Listen, internal, logger)
	})

	if client != nil && supported {
		signals, err := client.Subscribe(gctx)
		if err != nil {
			logger.Warn("failed to subscribe to notification signals", "error", err)
		} else {
			g.Go(func() error {
				a.Listen(gctx, signals)
				return nil
			})
		}
	}

	if interval := cfg.Sync.Interval.Duration(); interval > 0 {
		g.Go(func() error {
			return resender.Run(gctx, interval)
		})
	}

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-hup:
				logger.Info("received SIGHUP, reloading config")
				_ = reloader.ReloadConfig()
			}
		}
	})

	// Drain anything queued while the agent was not running.
	if err := a.WaitUntil(gctx, func(ctx context.Context) error {
		return a.Dispatch(ctx, agent.SyncEvent{Tag: agent.SyncTagMessages})
	}); err != nil {
		logger.Debug("startup sync not scheduled", "error", err)
	}

	logger.Info("chatnotifyd ready")
	err = g.Wait()

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if serr := a.Shutdown(shutdownCtx); serr != nil {
		logger.Warn("in-flight work did not finish", "error", serr)
	}
	return err
}

// serveHTTP runs the push server until ctx ends. A listener that cannot be
// acquired is reported and the agent carries on without the HTTP surface.
func serveHTTP(ctx context.Context, srv *push.Server, addr string, internal *daemon.InternalNotifier, logger *slog.Logger) error {
	if err := srv.ListenAndServe(ctx, addr); err != nil {
		logger.Error("http endpoint unavailable", "listen", addr, "error", err)
		internal.NotifySurfaceUnavailable("http endpoint", err)
	}
	return nil
}

func resendPolicy(cfg *config.Config) outbox.Policy {
	p := outbox.DefaultPolicy()
	if d := cfg.Sync.InitialBackoff.Duration(); d > 0 {
		p.InitialBackoff = d
	}
	if d := cfg.Sync.MaxBackoff.Duration(); d > 0 {
		p.MaxBackoff = d
	}
	if cfg.Sync.MaxAttempts > 0 {
		p.MaxAttempts = cfg.Sync.MaxAttempts
	}
	return p
}
