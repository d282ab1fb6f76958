// Package pipeline wires one run: fetch all configured sources, normalize
// and filter their entries, reconcile against the cache store, and write
// the output artifacts. Cache state is persisted only after every artifact
// was written, so a failed write is retried on the next run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/feedforge/forger/internal/config"
	"github.com/feedforge/forger/internal/feed"
	"github.com/feedforge/forger/internal/fetch"
	"github.com/feedforge/forger/internal/merge"
	"github.com/feedforge/forger/internal/model"
	"github.com/feedforge/forger/internal/output"
	"github.com/feedforge/forger/internal/store"
)

// ErrRunFailed is returned when no source produced a usable result; partial
// per-source failures are reported, not returned.
var ErrRunFailed = errors.New("run failed")

const recipeConcurrency = 4

type Runner struct {
	cfg        config.Config
	store      *store.Store
	fetcher    *fetch.Fetcher
	normalizer *feed.Normalizer
	writer     *output.Writer
}

func NewRunner(cfg config.Config, st *store.Store) *Runner {
	return &Runner{
		cfg:        cfg,
		store:      st,
		fetcher:    fetch.New(cfg),
		normalizer: feed.NewNormalizer(),
		writer:     output.NewWriter(cfg.OutputDir),
	}
}

// recipeOutput is the write-once result slot for one recipe's processing.
type recipeOutput struct {
	items   []model.Item
	updates []model.CachedEntry
	states  []model.SourceState
	results []model.SourceResult
}

// Run executes one pipeline pass. When only is non-empty, processing is
// restricted to that recipe. The returned report always carries every
// per-source outcome; the error is non-nil only on total failure.
func (r *Runner) Run(ctx context.Context, only string) (model.RunReport, error) {
	report := model.RunReport{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}

	recipes, err := r.selectRecipes(only)
	if err != nil {
		return report, err
	}

	sources := r.selectSources(recipes)
	if len(sources) == 0 {
		report.EndedAt = time.Now().UTC()
		return report, nil
	}

	states, err := r.store.ListSourceStates(ctx)
	if err != nil {
		log.Warnf("loading source states: %v, starting from empty state", err)
		report.Warnings = append(report.Warnings, fmt.Sprintf("source state unavailable: %v", err))
		states = map[string]model.SourceState{}
	}

	// The run timeout bounds fetching only: sources that completed in time
	// proceed through merge and write on the caller's context.
	fetchCtx, cancel := context.WithTimeout(ctx, r.cfg.RunTimeout)
	outcomes := r.fetchSources(fetchCtx, sources, states)
	cancel()

	byRecipe := make(map[string][]fetch.Outcome)
	for _, out := range outcomes {
		byRecipe[out.Source.Recipe] = append(byRecipe[out.Source.Recipe], out)
	}

	outputs := make(map[string]*recipeOutput, len(recipes))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(recipeConcurrency)
	for _, recipe := range recipes {
		recipe := recipe
		out := &recipeOutput{}
		outputs[recipe.Name] = out
		group.Go(func() error {
			r.processRecipe(groupCtx, recipe, byRecipe[recipe.Name], states, out)
			return nil
		})
	}
	_ = group.Wait()

	var updates []model.CachedEntry
	var newStates []model.SourceState
	for _, name := range recipeNames(recipes) {
		out := outputs[name]
		report.Results = append(report.Results, out.results...)
		updates = append(updates, out.updates...)
		newStates = append(newStates, out.states...)
	}
	sortResults(report.Results)

	writeFailed := false
	generated := output.Extension{RunID: report.RunID, GeneratedAt: report.StartedAt}
	for _, recipe := range recipes {
		out := outputs[recipe.Name]
		merge.Order(out.items)
		doc := output.BuildFeed(recipe.Name, out.items, r.cfg.PublishBaseURL, generated)
		path, err := r.writer.WriteFeed(doc)
		if err != nil {
			writeFailed = true
			log.WithField("recipe", recipe.Name).Errorf("writing artifact: %v", err)
			report.Warnings = append(report.Warnings, err.Error())
			continue
		}
		log.WithFields(log.Fields{"recipe": recipe.Name, "items": len(out.items)}).
			Infof("wrote %s", path)
		report.Artifacts = append(report.Artifacts, path)
	}

	// Persist cache state only when every artifact landed; otherwise the
	// next run must see the old hashes and re-emit.
	if writeFailed {
		report.Warnings = append(report.Warnings, "cache state not persisted: artifact write failed, next run will re-emit")
	} else if err := r.store.SaveRun(ctx, updates, newStates); err != nil {
		log.Errorf("persisting cache state: %v", err)
		report.Warnings = append(report.Warnings, fmt.Sprintf("cache state not persisted: %v", err))
	}

	report.EndedAt = time.Now().UTC()
	if path, err := r.writer.WriteReport(report); err != nil {
		log.Errorf("writing run report: %v", err)
	} else {
		report.Artifacts = append(report.Artifacts, path)
	}

	if report.Failed() {
		return report, fmt.Errorf("%w: no source produced a usable result", ErrRunFailed)
	}
	return report, nil
}

func (r *Runner) selectRecipes(only string) ([]config.Recipe, error) {
	names := make([]string, 0, len(r.cfg.Recipes))
	for name := range r.cfg.Recipes {
		names = append(names, name)
	}
	sort.Strings(names)

	if only != "" {
		recipe, ok := r.cfg.Recipes[only]
		if !ok {
			return nil, fmt.Errorf("%w: unknown recipe %q", store.ErrInvalidInput, only)
		}
		return []config.Recipe{recipe}, nil
	}

	recipes := make([]config.Recipe, 0, len(names))
	for _, name := range names {
		recipes = append(recipes, r.cfg.Recipes[name])
	}
	return recipes, nil
}

func (r *Runner) selectSources(recipes []config.Recipe) []model.Source {
	keep := make(map[string]struct{}, len(recipes))
	for _, recipe := range recipes {
		keep[recipe.Name] = struct{}{}
	}
	var out []model.Source
	for _, src := range r.cfg.Sources() {
		if _, ok := keep[src.Recipe]; ok {
			out = append(out, src)
		}
	}
	return out
}

func (r *Runner) fetchSources(ctx context.Context, sources []model.Source, states map[string]model.SourceState) []fetch.Outcome {
	jobs := make([]fetch.Job, 0, len(sources))
	for _, src := range sources {
		state := states[src.URL]
		state.URL = src.URL
		jobs = append(jobs, fetch.Job{Source: src, State: state})
	}

	return r.fetcher.FetchAll(ctx, jobs, func(done, total int, out fetch.Outcome) {
		logger := log.WithFields(log.Fields{
			"recipe":   out.Source.Recipe,
			"url":      out.Source.URL,
			"progress": fmt.Sprintf("%d/%d", done, total),
		})
		switch {
		case out.Err != nil:
			logger.Warnf("fetch failed: %v", out.Err)
		case out.Doc.NotModified:
			logger.Debug("not modified")
		default:
			logger.Debugf("fetched %d bytes", len(out.Doc.Body))
		}
	})
}

// processRecipe normalizes, fulfills, and reconciles every fetched source
// of one recipe. Failures are isolated per source.
func (r *Runner) processRecipe(ctx context.Context, recipe config.Recipe, outcomes []fetch.Outcome, states map[string]model.SourceState, out *recipeOutput) {
	filters, err := feed.CompileFilters(recipe.Filters)
	if err != nil {
		// Config validation compiles these already; a failure here means the
		// recipe changed under us.
		log.WithField("recipe", recipe.Name).Errorf("compiling filters: %v", err)
	}
	opts := feed.Options{
		Cutoff:  time.Now().UTC().Add(-r.cfg.MaxAge(recipe)),
		Filters: filters,
	}
	now := time.Now().UTC()

	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].Source.URL < outcomes[j].Source.URL })

	for _, outcome := range outcomes {
		result := model.SourceResult{Recipe: recipe.Name, URL: outcome.Source.URL}
		state := states[outcome.Source.URL]
		state.URL = outcome.Source.URL

		switch {
		case outcome.Err != nil:
			result.Error = outcome.Err.Error()
			if errors.Is(outcome.Err, context.DeadlineExceeded) || errors.Is(outcome.Err, context.Canceled) {
				result.Skipped = true
			}
			state.FailCount++
			state.LastError = result.Error

		case outcome.Doc.NotModified:
			result.NotModified = true
			state = successState(state, outcome.Doc)

		default:
			items, err := r.normalizer.Normalize(outcome.Doc, opts)
			if err != nil {
				result.Error = err.Error()
				state.FailCount++
				state.LastError = result.Error
				break
			}
			if recipe.Fulfill {
				r.fulfill(ctx, recipe.Name, items)
			}

			snapshot, err := r.store.LoadEntries(ctx, outcome.Source.URL)
			if err != nil {
				log.WithField("url", outcome.Source.URL).
					Warnf("cache snapshot unavailable: %v, treating all entries as new", err)
				snapshot = map[string]model.CachedEntry{}
			}

			merged := merge.Reconcile(snapshot, items, now)
			result.New = merged.New
			result.Changed = merged.Changed
			out.items = append(out.items, merged.Emit...)
			out.updates = append(out.updates, merged.Updates...)
			state = successState(state, outcome.Doc)

			log.WithFields(log.Fields{
				"recipe":  recipe.Name,
				"url":     outcome.Source.URL,
				"new":     merged.New,
				"changed": merged.Changed,
			}).Info("reconciled source")
		}

		out.results = append(out.results, result)
		out.states = append(out.states, state)
	}
}

// fulfill fetches linked pages for items with thin content and replaces
// their content with the extracted main article. Successful page bodies are
// cached in the store with a TTL; failures are recorded for visibility but
// refetched on the next run.
func (r *Runner) fulfill(ctx context.Context, recipeName string, items []model.Item) {
	logger := log.WithField("recipe", recipeName)
	for i := range items {
		item := &items[i]
		if item.URL == "" || !feed.NeedsFulfillment(*item) {
			continue
		}

		body, cached, err := r.store.GetPage(ctx, item.URL, r.cfg.PageTTL)
		if err != nil {
			logger.Warnf("page cache lookup for %s: %v", item.URL, err)
		}
		if !cached {
			body, err = r.fetcher.FetchPage(ctx, item.URL)
			if err != nil {
				logger.Warnf("fulfillment fetch for %s: %v", item.URL, err)
				_ = r.store.SetPage(ctx, item.URL, nil, err.Error())
				continue
			}
			if err := r.store.SetPage(ctx, item.URL, body, ""); err != nil {
				logger.Warnf("page cache store for %s: %v", item.URL, err)
			}
		}

		if !feed.ApplyExtracted(item, feed.ExtractMainContent(body)) {
			logger.Debugf("no extractable content at %s", item.URL)
		}
	}
}

func successState(state model.SourceState, doc model.Document) model.SourceState {
	fetchedAt := doc.FetchedAt
	state.ETag = doc.ETag
	state.LastModified = doc.LastModified
	state.LastFetchedAt = &fetchedAt
	state.FailCount = 0
	state.LastError = ""
	return state
}

func recipeNames(recipes []config.Recipe) []string {
	names := make([]string, 0, len(recipes))
	for _, recipe := range recipes {
		names = append(names, recipe.Name)
	}
	sort.Strings(names)
	return names
}

func sortResults(results []model.SourceResult) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Recipe != results[j].Recipe {
			return results[i].Recipe < results[j].Recipe
		}
		return results[i].URL < results[j].URL
	})
}
