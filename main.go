// Command re-scraper runs the listing scrape pipeline on a schedule and
// serves the read API. Configuration comes from the environment (see
// config.Load); DB_DSN selects Postgres, otherwise an in-memory store is
// used for offline runs.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ZaitsWit/re-scraper/api"
	"github.com/ZaitsWit/re-scraper/config"
	"github.com/ZaitsWit/re-scraper/extract"
	"github.com/ZaitsWit/re-scraper/fetch"
	"github.com/ZaitsWit/re-scraper/logging"
	"github.com/ZaitsWit/re-scraper/pipeline"
	"github.com/ZaitsWit/re-scraper/store"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}

	log := logging.New(cfg.DevLog)
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var st store.Store
	if cfg.DBDSN != "" {
		pg, err := store.OpenPostgres(ctx, cfg.DBDSN)
		if err != nil {
			log.Fatalw("postgres connect", "err", err)
		}
		if err := pg.InitSchema(ctx); err != nil {
			log.Fatalw("init schema", "err", err)
		}
		st = pg
	} else {
		log.Warnw("DB_DSN not set, using in-memory store; data will not survive restarts")
		st = store.NewMemory()
	}
	defer st.Close()

	opts := fetch.Options{}
	if cfg.DumpHTML {
		opts.DumpDir = cfg.DumpDir
	}
	fetcher := fetch.New(log, opts)

	sources := []extract.Source{
		extract.NewCian(cfg, log),
		extract.NewAvito(cfg, log),
	}

	filters := pipeline.Filters{
		RentLongOnly: cfg.RentLongOnly,
		ExcludeRooms: cfg.ExcludeRooms,
		MinAreaM2:    cfg.MinAreaM2,
		MaxPriceRub:  cfg.MaxPriceRub,
	}
	orch := pipeline.NewOrchestrator(fetcher, sources, st, filters, log)

	interval := time.Duration(cfg.ScrapeIntervalMin) * time.Minute
	runner := pipeline.NewRunner(orch, interval, log)
	runner.Start(ctx)

	srv := api.NewServer(cfg.APIAddr, st, runner, log)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorw("API server", "err", err)
			stop()
		}
	}()

	log.Infow("started",
		"city", cfg.ScrapeCity, "interval_min", cfg.ScrapeIntervalMin, "api", cfg.APIAddr)

	<-ctx.Done()
	log.Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warnw("API shutdown", "err", err)
	}
	runner.Wait()
}
