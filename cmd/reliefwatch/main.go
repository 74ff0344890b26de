package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/reliefwatch/reliefwatch/internal/config"
	"github.com/reliefwatch/reliefwatch/internal/connector"
	"github.com/reliefwatch/reliefwatch/internal/cycle"
	"github.com/reliefwatch/reliefwatch/internal/enrich"
	"github.com/reliefwatch/reliefwatch/internal/logging"
	"github.com/reliefwatch/reliefwatch/internal/metrics"
	"github.com/reliefwatch/reliefwatch/internal/ontology"
	"github.com/reliefwatch/reliefwatch/internal/store"
	"github.com/reliefwatch/reliefwatch/internal/work"
)

func main() {
	configPath := flag.String("config", config.Path(), "path to config file")
	once := flag.Bool("once", false, "run a single cycle and exit")
	metricsAddr := flag.String("metrics-addr", ":9190", "listen address for /metrics (empty to disable)")
	flag.Parse()

	if err := logging.Init(); err != nil {
		fmt.Fprintln(os.Stderr, "reliefwatch: logging init:", err)
	}
	defer logging.Close()

	if err := run(*configPath, *once, *metricsAddr); err != nil {
		logging.Error("fatal", "error", err)
		fmt.Fprintln(os.Stderr, "reliefwatch:", err)
		os.Exit(1)
	}
}

func run(configPath string, once bool, metricsAddr string) error {
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer st.Close()

	tax := ontology.DefaultTaxonomy()
	if cfg.TaxonomyFile != "" {
		tax, err = ontology.LoadTaxonomyFile(cfg.TaxonomyFile)
		if err != nil {
			return fmt.Errorf("load taxonomy: %w", err)
		}
	}

	connectors := connector.FromConfig(cfg.Sources)
	if len(connectors) == 0 {
		return fmt.Errorf("no sources configured")
	}
	fetcher := work.NewFetcher(connectors, cfg.Cycle.ConnectorTimeout, cfg.Cycle.MaxWorkers)

	var enricher *enrich.Enricher
	if cfg.Enrichment.Enabled {
		provider := enrich.NewGeminiProvider(cfg.Enrichment.APIKey, cfg.Enrichment.Model, cfg.Enrichment.Endpoint)
		enricher = enrich.NewEnricher(provider, enrich.Options{
			BatchSize:      cfg.Enrichment.BatchSize,
			MaxConcurrent:  cfg.Enrichment.MaxConcurrent,
			RetryBackoff:   cfg.Enrichment.RetryBackoff,
			RequestsPerMin: cfg.Enrichment.RequestsPerMin,
		})
		logging.Info("enrichment enabled", "model", cfg.Enrichment.Model)
	} else {
		logging.Info("enrichment disabled, rule engine only")
	}

	m := metrics.New()
	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		go func() {
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				logging.Warn("metrics server stopped", "error", err)
			}
		}()
		logging.Info("metrics listening", "addr", metricsAddr)
	}

	runner := cycle.New(cfg, st, fetcher, tax, enricher, m)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if once {
		summary, err := runner.Run(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("cycle %d: %s, %d items, %d events (%d new, %d updated, %d unchanged)\n",
			summary.CycleID, summary.Status, summary.Items, summary.Events,
			summary.NewEvents, summary.Updated, summary.Suppressed)
		return nil
	}

	logRecentHealth(st, cfg.Gates.HistoryCycles)

	scheduler := cycle.NewScheduler(runner, cfg.Cycle.Interval)
	scheduler.Start(ctx)
	logging.Info("monitoring started", "interval", cfg.Cycle.Interval, "sources", len(connectors))

	<-ctx.Done()
	logging.Info("shutting down")
	scheduler.Wait()
	return nil
}

// logRecentHealth summarizes gate results over the recent cycle history so a
// restart surfaces quality drift immediately.
func logRecentHealth(st *store.Store, historyCycles int) {
	if historyCycles <= 0 {
		return
	}
	cycles, err := st.RecentCycles(historyCycles)
	if err != nil {
		logging.Warn("could not read cycle history", "error", err)
		return
	}
	if len(cycles) == 0 {
		return
	}
	passed := 0
	for _, c := range cycles {
		if c.GatesPass {
			passed++
		}
	}
	logging.Info("recent cycle health", "cycles", len(cycles), "gates_passed", passed)
}
