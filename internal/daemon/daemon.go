// Package daemon wires the whole pipeline for the long-running serve
// mode: object store, event bus, stage processors, snapshot refresh,
// sweeps, and the review API.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-co-op/gocron/v2"
	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/brightpath-pm/billflow/internal/api"
	"github.com/brightpath-pm/billflow/internal/chunk"
	"github.com/brightpath-pm/billflow/internal/config"
	"github.com/brightpath-pm/billflow/internal/enrich"
	"github.com/brightpath-pm/billflow/internal/entrata"
	"github.com/brightpath-pm/billflow/internal/failure"
	"github.com/brightpath-pm/billflow/internal/line"
	"github.com/brightpath-pm/billflow/internal/llm"
	"github.com/brightpath-pm/billflow/internal/logfields"
	"github.com/brightpath-pm/billflow/internal/metrics"
	"github.com/brightpath-pm/billflow/internal/parser"
	"github.com/brightpath-pm/billflow/internal/pipeline"
	"github.com/brightpath-pm/billflow/internal/review"
	"github.com/brightpath-pm/billflow/internal/router"
	"github.com/brightpath-pm/billflow/internal/secrets"
	"github.com/brightpath-pm/billflow/internal/stage"
	"github.com/brightpath-pm/billflow/internal/storage"
	"github.com/brightpath-pm/billflow/internal/tables"
	"github.com/brightpath-pm/billflow/internal/ubi"
)

// Daemon owns every long-lived component of serve mode.
type Daemon struct {
	cfg *config.Config

	store     *storage.FSStore
	db        *tables.DB
	bus       *pipeline.Bus
	dlq       *pipeline.DeadLetterQueue
	watcher   *storage.Watcher
	scheduler gocron.Scheduler
	server    *api.Server
	llmClient *llm.GeminiClient
	mirror    *pipeline.NATSMirror
	failures  *failure.Router
	snapshots *enrich.Snapshots
	recorder  metrics.Recorder
}

// New builds a fully wired daemon from configuration.
func New(cfg *config.Config) (*Daemon, error) {
	store, err := storage.NewFSStore(cfg.StoreRoot)
	if err != nil {
		return nil, fmt.Errorf("open object store: %w", err)
	}
	db, err := tables.Open(cfg.TablePath)
	if err != nil {
		return nil, fmt.Errorf("open tables: %w", err)
	}

	extractionKeys, err := secrets.LoadPool("extraction")
	if err != nil {
		return nil, err
	}

	d := &Daemon{
		cfg:       cfg,
		store:     store,
		db:        db,
		bus:       pipeline.NewBus(),
		dlq:       pipeline.NewDeadLetterQueue(),
		llmClient: llm.NewGeminiClient(cfg.Model, cfg.LLMTimeout),
		snapshots: enrich.NewSnapshots(),
		failures:  &failure.Router{Store: store, Errors: db.Errors()},
	}

	registry := prom.NewRegistry()
	d.recorder = metrics.NewPrometheusRecorder(registry)

	engine := &parser.Engine{
		Schema:         line.Utility,
		Client:         d.llmClient,
		Keys:           extractionKeys,
		MaxAttempts:    cfg.MaxAttempts,
		BaseBackoff:    time.Duration(cfg.BaseBackoffSeconds * float64(time.Second)),
		MaxDroppedRows: cfg.MaxDroppedRowsBeforeRetry,
	}

	var matcher *enrich.Matcher
	if matcherKeys, err := secrets.LoadPool("matcher"); err == nil {
		matcher = &enrich.Matcher{
			Client: llm.NewGeminiClient(cfg.MatcherModel, cfg.LLMTimeout),
			Keys:   matcherKeys,
		}
	} else {
		slog.Warn("Matcher key pool unavailable, fuzzy matching disabled", logfields.Error(err))
	}

	d.subscribeProcessors(engine, matcher)

	if cfg.NATSURL != "" {
		mirror, err := pipeline.NewNATSMirror(cfg.NATSURL, "billflow.events")
		if err != nil {
			slog.Warn("NATS mirror unavailable", logfields.Error(err))
		} else {
			d.mirror = mirror
			d.bus.AddMirror(mirror)
		}
	}

	// Filesystem events cover objects written by anything other than our
	// own Put calls (email shims, manual drops).
	watcher, err := storage.NewWatcher(cfg.StoreRoot,
		[]string{stage.Pending, stage.EnrichmentExports},
		func(key string) { d.publish(key) })
	if err != nil {
		return nil, fmt.Errorf("start stage watcher: %w", err)
	}
	d.watcher = watcher

	store.OnPut(func(key string) {
		// Deliver asynchronously: a processor's own Put must not
		// re-enter the bus on its goroutine.
		go d.publish(key)
	})

	if err := d.schedule(); err != nil {
		return nil, err
	}

	reviewSvc := &review.Service{Store: store, Drafts: db.Drafts()}
	orchestrator := &entrata.Orchestrator{
		Store: store,
		Client: &entrata.Client{
			BaseURL:  cfg.EntrataURL,
			Username: cfg.EntrataUsername,
			Password: cfg.EntrataPassword,
		},
		Drafts: db.Drafts(),
		Errors: db.Errors(),
	}
	builder := &entrata.Builder{Store: store, Review: reviewSvc}
	engineUBI := &ubi.Engine{Store: store, UBI: db.UBI()}
	d.server = api.NewServer(cfg.ListenAddr, reviewSvc, builder, orchestrator,
		engineUBI, metrics.HTTPHandler(registry))

	return d, nil
}

// subscribeProcessors registers every stage processor on the bus with the
// default retry policy.
func (d *Daemon) subscribeProcessors(engine *parser.Engine, matcher *enrich.Matcher) {
	policy := pipeline.DefaultRetryPolicy()

	rt := &router.Router{
		Store:            d.store,
		Log:              d.db.RouterLog(),
		MaxPagesStandard: d.cfg.MaxPagesStandard,
		MaxSizeMB:        d.cfg.MaxSizeMBStandard,
	}
	d.bus.SubscribePrefix(stage.Pending,
		pipeline.WithRetry(d.instrument("router", rt.Handler()), policy, d.dlq))

	std := &parser.Processor{Store: d.store, Engine: engine, Errors: d.db.Errors()}
	d.bus.SubscribePrefix(stage.Standard,
		pipeline.WithRetry(d.instrument("standard_parser", std.Handler()), policy, d.dlq))

	splitter := &chunk.Splitter{
		Store:         d.store,
		Jobs:          d.db.Jobs(),
		PagesPerChunk: d.cfg.PagesPerChunk,
	}
	d.bus.SubscribePrefix(stage.LargeFile,
		pipeline.WithRetry(d.instrument("splitter", splitter.Handler()), policy, d.dlq))

	aggregator := &chunk.Aggregator{Store: d.store, Jobs: d.db.Jobs()}
	chunkProc := &chunk.Processor{
		Store:     d.store,
		Jobs:      d.db.Jobs(),
		Engine:    engine,
		Errors:    d.db.Errors(),
		Stagger:   time.Duration(d.cfg.ChunkStaggerSeconds * float64(time.Second)),
		Aggregate: aggregator.Run,
	}
	d.bus.SubscribePrefix(stage.LargeFileChunks,
		pipeline.WithRetry(d.instrument("chunk_processor", chunkProc.Handler()), policy, d.dlq))

	enricher := &enrich.Enricher{Store: d.store, Snapshots: d.snapshots, Matcher: matcher}
	d.bus.SubscribePrefix(stage.ParsedOutputs,
		pipeline.WithRetry(d.instrument("enricher", enricher.Handler()), policy, d.dlq))

	// A fresh dimension export takes effect immediately rather than on
	// the hourly refresh.
	d.bus.SubscribePrefix(stage.EnrichmentExports, func(e pipeline.ObjectCreated) error {
		return d.snapshots.Refresh(context.Background(), d.store)
	})
}

// instrument wraps a handler with duration and result metrics.
func (d *Daemon) instrument(stageName string, h pipeline.Handler) pipeline.Handler {
	return func(e pipeline.ObjectCreated) error {
		start := time.Now()
		err := h(e)
		d.recorder.ObserveProcessDuration(stageName, time.Since(start))
		if err != nil {
			d.recorder.IncProcessResult(stageName, metrics.ResultRetried)
		} else {
			d.recorder.IncProcessResult(stageName, metrics.ResultSuccess)
		}
		return err
	}
}

func (d *Daemon) publish(key string) {
	if err := d.bus.Publish(pipeline.ObjectCreated{Key: key, Time: time.Now().UTC()}); err != nil {
		slog.Error("Event handling failed", logfields.PDFKey(key), logfields.Error(err))
	}
}

// schedule registers the periodic jobs: the pending sweep that republishes
// stranded Stage 1 objects, the hourly snapshot refresh, and the DLQ
// drain that routes exhausted events through the failure router.
func (d *Daemon) schedule() error {
	s, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}
	d.scheduler = s

	if _, err := s.NewJob(
		gocron.DurationJob(time.Minute),
		gocron.NewTask(d.sweepPending),
		gocron.WithName("pending-sweep"),
	); err != nil {
		return fmt.Errorf("schedule pending sweep: %w", err)
	}
	if _, err := s.NewJob(
		gocron.DurationJob(time.Hour),
		gocron.NewTask(func() {
			if err := d.snapshots.Refresh(context.Background(), d.store); err != nil {
				slog.Warn("Snapshot refresh failed", logfields.Error(err))
			}
		}),
		gocron.WithName("snapshot-refresh"),
	); err != nil {
		return fmt.Errorf("schedule snapshot refresh: %w", err)
	}
	if _, err := s.NewJob(
		gocron.DurationJob(5*time.Minute),
		gocron.NewTask(d.drainDLQ),
		gocron.WithName("dlq-drain"),
	); err != nil {
		return fmt.Errorf("schedule dlq drain: %w", err)
	}
	return nil
}

// sweepPending republishes any object sitting in a Stage 1 lane. Events
// can be lost across restarts; processors are idempotent, so
// republishing is always safe.
func (d *Daemon) sweepPending() {
	ctx := context.Background()
	for _, prefix := range []string{stage.Pending, stage.Standard, stage.LargeFile, stage.LargeFileChunks} {
		keys, err := d.store.List(ctx, prefix)
		if err != nil {
			slog.Warn("Pending sweep list failed", slog.String("prefix", prefix), logfields.Error(err))
			continue
		}
		for _, k := range keys {
			if strings.HasSuffix(k, ".json") {
				// Sidecar hints ride along with their PDF; they are not
				// events of their own.
				continue
			}
			d.publish(k)
		}
	}
}

// drainDLQ routes retry-exhausted events through the failure router: one
// chunked retry for a first failure, parked for a repeat.
func (d *Daemon) drainDLQ() {
	events := d.dlq.GetAll()
	if len(events) == 0 {
		return
	}
	d.dlq.Clear()
	ctx := context.Background()
	for _, fe := range events {
		errMsg := ""
		if fe.Error != nil {
			errMsg = fe.Error.Error()
		}
		if err := d.failures.Route(ctx, fe.Event.Key, "retry_exhausted", errMsg); err != nil {
			slog.Error("Failure routing failed", logfields.PDFKey(fe.Event.Key), logfields.Error(err))
		}
	}
}

// Run starts everything and blocks until the context is canceled, then
// shuts down gracefully.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.snapshots.Refresh(ctx, d.store); err != nil {
		slog.Warn("Initial snapshot refresh failed", logfields.Error(err))
	}

	go d.watcher.Run(ctx)
	d.scheduler.Start()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Review API listening", slog.String("addr", d.cfg.ListenAddr))
		if err := d.server.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("api server: %w", err)
	}

	slog.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := d.server.Shutdown(shutdownCtx); err != nil {
		slog.Warn("API shutdown failed", logfields.Error(err))
	}
	if err := d.scheduler.Shutdown(); err != nil {
		slog.Warn("Scheduler shutdown failed", logfields.Error(err))
	}
	d.watcher.Close()
	if d.mirror != nil {
		d.mirror.Close()
	}
	d.llmClient.Close()
	d.db.Close()
	return nil
}
