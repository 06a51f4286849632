package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"

	"evcal/internal/config"
	"evcal/internal/ics"
	appLog "evcal/internal/log"
	"evcal/internal/source"
	"evcal/internal/web"
)

type flagConfig struct {
	configPath string
	listen     string
	once       bool
	debug      bool
}

func main() {
	flags := parseFlags()

	if flags.debug {
		appLog.SetLevel(appLog.LevelDebug)
	}
	appLog.Info("evcal starting", "version", "0.1.0")

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	// CLI --listen overrides config file listen if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"week_start", conf.WeekStart,
		"grid_rows", conf.GridRows,
		"refresh", conf.RefreshCron,
		"feed_count", len(conf.Feeds),
		"events_file", conf.EventsFile,
		"once", flags.once,
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	cacheDir := "/var/lib/evcal/feed-cache"
	if flags.debug {
		cacheDir = "./cache/feed-cache"
	}

	sources := make([]ics.Source, 0, len(conf.Feeds))
	for _, feed := range conf.Feeds {
		if feed.URL == "" {
			continue
		}
		id := feed.ID
		if id == "" {
			if feed.Name != "" {
				id = feed.Name
			} else {
				id = feed.URL
			}
		}
		sources = append(sources, ics.Source{ID: id, URL: feed.URL})
	}

	store := source.NewStore()
	loader := &source.Loader{
		Fetcher:    ics.NewFetcher(cacheDir),
		Sources:    sources,
		EventsFile: conf.EventsFile,
	}

	// Initial ingest before the server comes up, so the first request
	// never sees an empty snapshot for transient reasons.
	if err := loader.Refresh(ctx, store); err != nil {
		appLog.Error("initial ingest failed", err)
		if flags.once {
			os.Exit(1)
		}
	}

	if flags.once {
		appLog.Info("single-shot ingest complete, exiting")
		return
	}

	// Periodic refresh on the configured cron schedule.
	c := cron.New()
	if _, err := c.AddFunc(conf.RefreshCron, func() {
		if err := loader.Refresh(ctx, store); err != nil {
			appLog.Error("scheduled refresh failed", err)
		}
	}); err != nil {
		appLog.Error("invalid refresh schedule", err, "refresh", conf.RefreshCron)
		os.Exit(1)
	}
	c.Start()
	defer c.Stop()

	// Live reload of the local listings file.
	if conf.EventsFile != "" {
		go func() {
			if err := loader.Watch(ctx, store); err != nil && ctx.Err() == nil {
				appLog.Error("listings watcher stopped", err)
			}
		}()
	}

	if err := web.StartServer(ctx, conf, store); err != nil {
		appLog.Error("HTTP server failed", err)
		os.Exit(1)
	}

	appLog.Info("evcal exiting")
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/evcal/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Run one ingest cycle and exit")
	flag.BoolVar(&cfg.debug, "debug", false, "Debug logging and local cache paths")

	flag.Parse()

	return cfg
}
