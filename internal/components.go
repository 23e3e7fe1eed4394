package internal

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/starford/beamline/internal/journal"
	"github.com/starford/beamline/internal/metadata"
	"github.com/starford/beamline/internal/metrics"
	"github.com/starford/beamline/internal/notify"
	"github.com/starford/beamline/internal/pipeline"
	"github.com/starford/beamline/internal/record"
	"github.com/starford/beamline/internal/registry"
	"github.com/starford/beamline/internal/retry"
	"github.com/starford/beamline/internal/service"
	"github.com/starford/beamline/internal/sse"
	"github.com/starford/beamline/internal/storage"
)

// components holds everything the daemon and the MCP server share.
type components struct {
	logger  *slog.Logger
	store   *storage.FS
	db      *journal.DB
	metrics *metrics.Metrics
	broker  *sse.Broker
	pub     notify.Publisher
	queue   *pipeline.Dispatcher
	svc     *service.Service

	closers []func() error
}

// close releases resources in reverse order of acquisition.
func (c *components) close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			c.logger.Warn("shutdown: close failed", slog.String("error", err.Error()))
		}
	}
}

// newLogger builds the JSON logger, tee'ing to cfg.LogFile when set. The
// returned closer closes the log file.
func newLogger(cfg ApplicationConfig, out io.Writer) (*slog.Logger, func() error, error) {
	closer := func() error { return nil }
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out = io.MultiWriter(out, f)
		closer = f.Close
	}
	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	return logger, closer, nil
}

// processorConfig turns the transform section into pipeline settings.
func processorConfig(t TransformConfig) (pipeline.Config, error) {
	strategy, err := metadata.ParseStrategy(t.MetadataStrategy)
	if err != nil {
		return pipeline.Config{}, err
	}
	policy, err := record.ParseRenamePolicy(t.RenamePolicy)
	if err != nil {
		return pipeline.Config{}, err
	}
	gate, err := metadata.ParseGate(t.MetadataGate)
	if err != nil {
		return pipeline.Config{}, err
	}

	cfg := pipeline.Config{Strategy: strategy, RenamePolicy: policy}
	if strategy.UsesPattern() {
		cfg.Pattern, err = metadata.NewPatternRewriter(metadata.PatternConfig{
			NamePrefixes:    t.NamePrefixes,
			RemnantSentinel: t.RemnantSentinel,
		})
		if err != nil {
			return pipeline.Config{}, err
		}
	}
	if strategy.UsesTree() {
		cfg.Tree = metadata.NewTreeRewriter(metadata.TreeConfig{
			Elements: metadata.Elements{
				ProfileGroup: t.Elements.ProfileGroup,
				ProfileType:  t.Elements.ProfileType,
				PieceInfo:    t.Elements.PieceInfo,
				Length:       t.Elements.Length,
				Identifiers:  t.Elements.Identifiers,
			},
			ProfileType: t.ProfileType,
			Threshold:   t.LengthThreshold,
			Gate:        gate,
			Variant:     t.Variant(),
		})
	}
	return cfg, nil
}

// build wires storage, journal, metrics, notifications and the dispatcher.
// On error everything acquired so far is released.
func build(cfg *Config, logger *slog.Logger) (c *components, err error) {
	c = &components{logger: logger}
	defer func() {
		if err != nil {
			c.close()
		}
	}()

	roots, err := registry.Load(cfg.Watch.FoldersFile, cfg.Watch.Folders, logger)
	if err != nil {
		return c, err
	}

	if c.store, err = storage.NewFS(roots...); err != nil {
		return c, fmt.Errorf("init storage: %w", err)
	}

	if c.db, err = journal.Open(cfg.SQLite.Path); err != nil {
		return c, fmt.Errorf("init journal: %w", err)
	}
	c.closers = append(c.closers, c.db.Close)

	c.metrics = metrics.New()
	c.broker = sse.NewBroker(2*time.Second, sse.WithStats(c.db))
	c.closers = append(c.closers, func() error { c.broker.Close(); return nil })

	c.pub = notify.Nop{}
	if cfg.NATS.URL != "" {
		nc, err := notify.Connect(cfg.NATS.URL, cfg.NATS.SubjectPrefix, logger)
		if err != nil {
			return c, err
		}
		c.pub = nc
		c.closers = append(c.closers, nc.Close)
	}

	guard := retry.NewGuard(cfg.Retry.Policy(), logger,
		retry.WithRetryHook(func(string) { c.metrics.Retried() }))

	pcfg, err := processorConfig(cfg.Transform)
	if err != nil {
		return c, fmt.Errorf("transform config: %w", err)
	}
	proc, err := pipeline.NewProcessor(c.store, guard, pcfg, logger)
	if err != nil {
		return c, err
	}

	ignore, err := pipeline.NewMatcher(roots, cfg.Watch.Ignore)
	if err != nil {
		return c, err
	}

	c.queue = pipeline.NewDispatcher(proc, logger,
		pipeline.WithWorkers(cfg.Watch.Workers),
		pipeline.WithQueueSize(cfg.Watch.QueueSize),
		pipeline.WithShutdownTimeout(cfg.Watch.ShutdownTimeout),
		pipeline.WithSettle(cfg.Watch.Settle),
		pipeline.WithIgnore(ignore),
		pipeline.WithJournal(c.db),
		pipeline.WithBroker(c.broker),
		pipeline.WithPublisher(c.pub),
		pipeline.WithMetrics(c.metrics),
	)
	c.svc = service.NewService(c.db, c.queue, c.store)
	return c, nil
}
