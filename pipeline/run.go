package pipeline

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ZaitsWit/re-scraper/extract"
	"github.com/ZaitsWit/re-scraper/fetch"
	"github.com/ZaitsWit/re-scraper/listing"
	"github.com/ZaitsWit/re-scraper/store"
)

// A page yielding fewer cards than this is treated as the tail of the
// result set and stops pagination for the source.
const minCardsPerPage = 5

// PageFetcher is what the orchestrator needs from the HTTP layer.
type PageFetcher interface {
	Fetch(ctx context.Context, url, source string, page int, pol fetch.Policy) ([]byte, error)
}

// SourceReport summarizes one source within a run.
type SourceReport struct {
	Source     string      `json:"source"`
	Pages      int         `json:"pages"`
	Candidates int         `json:"candidates"`
	Stats      FilterStats `json:"stats"`
	Err        string      `json:"error,omitempty"`
}

// Summary is the outcome of one full pipeline run.
type Summary struct {
	StartedAt time.Time      `json:"started_at"`
	Duration  time.Duration  `json:"duration"`
	Sources   []SourceReport `json:"sources"`
	Inserted  int            `json:"inserted"`
	Updated   int            `json:"updated"`
	Unchanged int            `json:"unchanged"`
	Errors    int            `json:"errors"`
}

// Orchestrator runs the scrape pipeline: sources are fetched and parsed
// concurrently, then all candidates are reconciled in one transaction.
type Orchestrator struct {
	fetcher PageFetcher
	sources []extract.Source
	store   store.Store
	filters Filters
	log     *zap.SugaredLogger
}

func NewOrchestrator(fetcher PageFetcher, sources []extract.Source, st store.Store, f Filters, log *zap.SugaredLogger) *Orchestrator {
	return &Orchestrator{fetcher: fetcher, sources: sources, store: st, filters: f, log: log}
}

// collectSource pages through one source. A fetch failure stops further
// paging but the candidates gathered so far are kept.
func (o *Orchestrator) collectSource(ctx context.Context, src extract.Source) ([]listing.Candidate, SourceReport) {
	rep := SourceReport{Source: src.Name()}
	var all []listing.Candidate

	maxPages := src.MaxPages()
	if maxPages <= 0 {
		maxPages = 1
	}

	for page := 1; page <= maxPages; page++ {
		url := src.SearchURL(page)
		if url == "" {
			o.log.Warnw("source not configured, skipping", "source", src.Name())
			return nil, rep
		}
		body, err := o.fetcher.Fetch(ctx, url, src.Name(), page, src.Policy())
		if err != nil {
			o.log.Errorw("page fetch failed, stopping source",
				"source", src.Name(), "page", page, "err", err)
			rep.Err = err.Error()
			break
		}
		rep.Pages++

		cands := src.Extract(body)
		o.log.Infow("page parsed", "source", src.Name(), "page", page, "cards", len(cands))
		all = append(all, cands...)

		if len(cands) < minCardsPerPage {
			o.log.Infow("few cards on page, assuming end of results",
				"source", src.Name(), "page", page)
			break
		}
		if page < maxPages && src.RateLimitMs() > 0 {
			select {
			case <-ctx.Done():
				rep.Err = ctx.Err().Error()
				rep.Candidates = len(all)
				return all, rep
			case <-time.After(time.Duration(src.RateLimitMs()) * time.Millisecond):
			}
		}
	}

	rep.Candidates = len(all)
	return all, rep
}

// RunOnce executes one full pipeline pass and returns its summary. Source
// failures degrade the run (partial data) but only a store failure aborts it.
func (o *Orchestrator) RunOnce(ctx context.Context) (Summary, error) {
	start := time.Now()
	sum := Summary{StartedAt: start.UTC()}

	type sourceResult struct {
		cands []listing.Candidate
		rep   SourceReport
	}

	results := make([]sourceResult, len(o.sources))
	var wg sync.WaitGroup
	for i, src := range o.sources {
		wg.Add(1)
		go func(i int, src extract.Source) {
			defer wg.Done()
			cands, rep := o.collectSource(ctx, src)
			results[i] = sourceResult{cands: cands, rep: rep}
		}(i, src)
	}
	wg.Wait()

	var merged []listing.Candidate
	for _, r := range results {
		rep := r.rep
		cands, stats := Normalize(r.cands, o.filters)
		rep.Stats = stats
		if rep.Err != "" {
			sum.Errors++
		}
		o.log.Infow("source normalized",
			"source", rep.Source, "input", stats.Input, "kept", stats.Kept,
			"duplicates", stats.Duplicates, "daily_removed", stats.DailyRemoved,
			"rooms_removed", stats.RoomsRemoved, "out_of_bounds", stats.OutOfBounds)
		sum.Sources = append(sum.Sources, rep)
		merged = append(merged, cands...)
	}

	tx, err := o.store.Begin(ctx)
	if err != nil {
		sum.Duration = time.Since(start)
		return sum, err
	}
	for _, c := range merged {
		outcome, err := Reconcile(ctx, tx, c)
		if err != nil {
			_ = tx.Rollback(ctx)
			sum.Duration = time.Since(start)
			return sum, err
		}
		switch outcome {
		case Inserted:
			sum.Inserted++
		case Updated:
			sum.Updated++
		case Unchanged:
			sum.Unchanged++
		}
	}
	if err := tx.Commit(ctx); err != nil {
		sum.Duration = time.Since(start)
		return sum, err
	}

	sum.Duration = time.Since(start)
	o.log.Infow("run finished",
		"inserted", sum.Inserted, "updated", sum.Updated, "unchanged", sum.Unchanged,
		"errors", sum.Errors, "duration", sum.Duration)
	return sum, nil
}
