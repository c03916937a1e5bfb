package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/curro/internal/automation"
	"github.com/ternarybob/curro/internal/common"
	"github.com/ternarybob/curro/internal/queue"
	"github.com/ternarybob/curro/internal/scheduler"
	"github.com/ternarybob/curro/internal/services/events"
	badgerstorage "github.com/ternarybob/curro/internal/storage/badger"
	"github.com/ternarybob/curro/internal/worker"
)

// configPaths is a custom flag type that allows multiple -config flags
type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	configFiles  configPaths
	showVersion  = flag.Bool("version", false, "Print version information")
	showVersionV = flag.Bool("v", false, "Print version information (shorthand)")

	config *common.Config
	logger arbor.ILogger
)

func init() {
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

func main() {
	flag.Parse()

	if *showVersion || *showVersionV {
		fmt.Printf("Curro version %s\n", common.GetVersion())
		os.Exit(0)
	}

	// Auto-discover config file if not specified
	if len(configFiles) == 0 {
		if _, err := os.Stat("curro.toml"); err == nil {
			configFiles = append(configFiles, "curro.toml")
		}
	}

	var err error
	config, err = common.LoadFromFiles(configFiles...)
	if err != nil {
		tempLogger := arbor.NewLogger()
		tempLogger.Fatal().Strs("paths", configFiles).Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}

	logger = common.InitLogger(config)
	common.PrintBanner(common.GetVersion())

	logger.Info().
		Str("version", common.GetFullVersion()).
		Str("environment", config.Environment).
		Int("max_parallel", config.MaxParallel()).
		Msg("Starting curro")

	db, err := badgerstorage.NewBadgerDB(logger, &config.Storage.Badger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open storage")
		os.Exit(1)
	}
	defer db.Close()

	templateStore := badgerstorage.NewTemplateStorage(db, logger)

	eventService := events.NewService(logger)
	defer eventService.Close()

	queueMgr := queue.NewManager(eventService, logger)
	materializer := automation.NewMaterializer(logger)

	// The real rule engine plugs in through interfaces.InvokerFactory; the
	// standalone daemon runs specifications in dry-run mode.
	factory := worker.NewDryRunFactory()

	sched := scheduler.NewScheduler(
		queueMgr,
		materializer,
		factory,
		eventService,
		logger,
		config.Scheduler.AdmissionRate,
		config.Scheduler.CompletedCapacity,
	)

	cronRunner := scheduler.NewCronRunner(sched, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	specs, err := templateStore.ListTemplates(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to load stored templates")
	}
	registered := 0
	for _, spec := range specs {
		if spec.Schedule == "" {
			continue
		}
		if err := cronRunner.Register(spec); err != nil {
			logger.Warn().Err(err).Str("automation_id", spec.ID).Msg("Failed to register scheduled automation")
			continue
		}
		registered++
	}

	cronRunner.Start()
	defer cronRunner.Stop()

	// Poll-drain loop: admit and run pending instances one at a time so a
	// fanned-out group finishes even when its cron trigger admitted only one.
	common.SafeGo(logger, "scheduler-poll", func() {
		ticker := time.NewTicker(config.PollInterval())
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for {
					results, err := sched.StartAsync(ctx)
					if err != nil {
						if !errors.Is(err, context.Canceled) {
							logger.Warn().Err(err).Msg("Scheduler cycle failed")
						}
						return
					}
					if len(results) == 0 {
						break
					}
				}
			}
		}
	})

	logger.Info().Int("scheduled", registered).Msg("Curro started")

	// Block until shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	logger.Info().Str("signal", sig.String()).Msg("Shutting down")
}
