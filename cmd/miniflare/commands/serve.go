package commands

import (
	"context"
	"fmt"
	"net/url"
	"os/signal"
	"syscall"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/drivly/miniflare/internal/config"
	"github.com/drivly/miniflare/internal/logging"
	"github.com/drivly/miniflare/internal/notify"
	"github.com/drivly/miniflare/internal/proxy"
	"github.com/drivly/miniflare/internal/server"
	"github.com/drivly/miniflare/internal/watch"
	"github.com/drivly/miniflare/internal/worker"
)

// taskPoolSize bounds concurrent background tasks across all dispatches.
const taskPoolSize = 256

func runServe(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) == 1 {
		dir = args[0]
	}

	cfg, err := config.Load(dir)
	if err != nil {
		return err
	}
	applyFlags(cfg)

	logging.Init(logging.Config{
		Level:  logging.ParseLevel(cfg.LogLevel),
		Pretty: cfg.PrettyLogs,
	})
	log := logging.Component("runtime")

	pool, err := ants.NewPool(taskPoolSize)
	if err != nil {
		return err
	}
	defer pool.Release()

	scope, err := buildScope(cfg, pool)
	if err != nil {
		return err
	}

	srv := server.New(&server.Config{
		Host:         cfg.Host,
		Port:         cfg.Port,
		EnableCORS:   cfg.EnableCORS,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}, scope, logging.Component("server"))

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bus := notify.NewBus()
	defer bus.Close()

	if flagWatch && len(cfg.Sources) > 0 {
		w, err := watch.New(bus, cfg.Sources, logging.Component("watch"))
		if err != nil {
			return err
		}
		bus.Subscribe(notify.ConfigReloaded, func(n notify.Notification) {
			newCfg, err := config.Load(dir)
			if err != nil {
				log.Error().Err(err).Msg("reload failed, keeping previous configuration")
				return
			}
			applyFlags(newCfg)
			newScope, err := buildScope(newCfg, pool)
			if err != nil {
				log.Error().Err(err).Msg("reload failed, keeping previous worker")
				return
			}
			srv.SetScope(newScope)
			bus.Publish(notify.Notification{Type: notify.WorkerReset})
			log.Info().Msg("worker reset")
		})
		w.Start()
		defer w.Stop()
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// applyFlags overlays command-line flags onto the loaded configuration.
func applyFlags(cfg *config.Config) {
	if flagHost != "" {
		cfg.Host = flagHost
	}
	if flagPort != 0 {
		cfg.Port = flagPort
	}
	if flagUpstream != "" {
		cfg.Upstream = flagUpstream
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}
	if flagPretty {
		cfg.PrettyLogs = true
	}
}

// buildScope assembles an execution scope from the configuration. The
// CLI hosts no embedded worker program, so the scope starts without
// listeners: with an upstream configured it acts as a pass-through
// proxy, and the scheduled trigger route completes with no tasks.
func buildScope(cfg *config.Config, pool worker.Submitter) (*worker.Scope, error) {
	dispatchLog := logging.Component("dispatch")
	opts := worker.Options{
		Bindings: cfg.Bindings,
		Log:      &dispatchLog,
		Pool:     pool,
	}

	if cfg.Upstream != "" {
		origin, err := url.Parse(cfg.Upstream)
		if err != nil {
			return nil, fmt.Errorf("invalid upstream %q: %w", cfg.Upstream, err)
		}
		opts.Forwarder = proxy.New(origin, proxy.WithLogger(logging.Component("proxy")))
	}

	switch cfg.Mode {
	case "module":
		return worker.NewModule(opts, worker.Module{}), nil
	case "", "imperative":
		return worker.New(opts), nil
	default:
		return nil, fmt.Errorf("unknown mode %q", cfg.Mode)
	}
}
