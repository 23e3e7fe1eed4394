package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/beamline/internal/apperr"
	"github.com/starford/beamline/internal/checksum"
	"github.com/starford/beamline/internal/metadata"
	"github.com/starford/beamline/internal/models"
	"github.com/starford/beamline/internal/record"
	"github.com/starford/beamline/internal/retry"
	"github.com/starford/beamline/internal/storage"
)

// Config selects the transform variants.
type Config struct {
	Strategy     metadata.Strategy
	RenamePolicy record.RenamePolicy
	Pattern      *metadata.PatternRewriter
	Tree         *metadata.TreeRewriter
}

// Processor applies the transforms for one event at a time. It holds no
// per-event state; callers serialize events per path.
type Processor struct {
	store  storage.Provider
	guard  *retry.Guard
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	// produced remembers the checksum of content this process wrote, so the
	// watcher echo of our own write is recognized and left alone.
	mu       sync.Mutex
	produced map[string]string
}

// maxProduced bounds the produced map; it is reset when full.
const maxProduced = 4096

// NewProcessor creates a Processor. Nil rewriters in cfg are built with
// default settings.
func NewProcessor(store storage.Provider, guard *retry.Guard, cfg Config, logger *slog.Logger) (*Processor, error) {
	if cfg.Strategy == "" {
		cfg.Strategy = metadata.StrategyBoth
	}
	if cfg.RenamePolicy == "" {
		cfg.RenamePolicy = record.PolicyRename
	}
	if cfg.Pattern == nil && cfg.Strategy.UsesPattern() {
		pr, err := metadata.NewPatternRewriter(metadata.PatternConfig{})
		if err != nil {
			return nil, err
		}
		cfg.Pattern = pr
	}
	if cfg.Tree == nil && cfg.Strategy.UsesTree() {
		cfg.Tree = metadata.NewTreeRewriter(metadata.TreeConfig{})
	}
	return &Processor{
		store:    store,
		guard:    guard,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		produced: make(map[string]string),
	}, nil
}

// Process handles ev and reports what happened. File I/O runs under the
// retry guard; ctx only bounds the waits between attempts.
func (p *Processor) Process(ctx context.Context, ev models.FileEvent) models.Run {
	start := p.now()
	run := models.Run{
		ID:        uuid.NewString(),
		Path:      ev.Path,
		Kind:      ev.Kind,
		StartedAt: start,
	}

	var (
		err     error
		retries int
	)
	switch action := Classify(ev); action {
	case ActionRecordCreated, ActionRecordModified:
		retries, err = p.processRecord(ctx, ev.Path, action == ActionRecordCreated, &run)
	case ActionMetadata:
		retries, err = p.processMetadata(ctx, ev.Path, &run)
	default:
		run.Outcome = models.OutcomeSkipped
	}
	run.Retries = retries
	run.Duration = p.now().Sub(start)

	switch {
	case err == nil:
		if run.Outcome == "" {
			run.Outcome = models.OutcomeUnchanged
			if len(run.Steps) > 0 {
				run.Outcome = models.OutcomeChanged
			}
		}
	case errors.Is(err, os.ErrNotExist):
		// Typically renamed away by an earlier event.
		run.Outcome = models.OutcomeSkipped
		p.logger.Debug("pipeline: file gone, skipping", slog.String("path", ev.Path))
	case errors.Is(err, apperr.ErrMalformed):
		run.Outcome = models.OutcomeSkipped
		run.Error = err.Error()
		p.logger.Warn("pipeline: malformed input", slog.String("path", ev.Path), slog.String("error", err.Error()))
	default:
		run.Outcome = models.OutcomeFailed
		run.Error = err.Error()
		p.logger.Error("pipeline: processing failed", slog.String("path", ev.Path), slog.String("error", err.Error()))
	}
	return run
}

// processRecord runs the record transforms. Once the new content is on disk
// a retried attempt only finishes the pending rename or delete, so the
// header is never trimmed twice.
func (p *Processor) processRecord(ctx context.Context, path string, created bool, run *models.Run) (int, error) {
	var (
		written bool
		target  string
		out     []byte
	)
	return p.guard.DoCount(ctx, path, func() error {
		if !written {
			data, err := p.store.Read(path)
			if err != nil {
				return err
			}
			if p.isProduced(path, data) {
				run.Checksum = checksum.Sum(data)
				return nil
			}
			run.Steps = nil

			rec := record.Parse(data)
			changed := false
			if created {
				var stripped bool
				if rec, stripped = record.StripAnnotations(rec); stripped {
					run.Steps = append(run.Steps, models.StepStrip)
					changed = true
				}
			}
			if base, ok := record.RenamedBase(filepath.Base(path)); ok {
				target = filepath.Join(filepath.Dir(path), base)
				var trimmed bool
				if rec, trimmed = record.TrimHeader(rec); trimmed {
					run.Steps = append(run.Steps, models.StepTrimHeader)
					changed = true
				}
			}
			out = rec.Bytes()
			run.Checksum = checksum.Sum(out)

			switch {
			case target != "" && p.cfg.RenamePolicy == record.PolicyReplace:
				p.remember(target, out)
				if err := p.store.Write(target, out); err != nil {
					return err
				}
			case changed:
				p.remember(path, out)
				if err := p.store.Write(path, out); err != nil {
					return err
				}
			}
			written = true
		}

		if target == "" {
			return nil
		}
		if _, err := os.Stat(target); err == nil && p.cfg.RenamePolicy == record.PolicyRename {
			p.logger.Warn("pipeline: rename target exists, replacing", slog.String("path", path), slog.String("target", target))
		}
		switch p.cfg.RenamePolicy {
		case record.PolicyReplace:
			if err := p.store.Delete(path); err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}
		default:
			p.remember(target, out)
			if err := p.store.Move(path, target); err != nil {
				return err
			}
		}
		p.forget(path)
		run.RenamedTo = target
		run.Steps = append(run.Steps, models.StepRename)
		return nil
	})
}

// processMetadata runs the configured metadata strategy and writes once.
// When the structural step finds malformed XML after the pattern step
// changed the text, the pattern result is still written.
func (p *Processor) processMetadata(ctx context.Context, path string, run *models.Run) (int, error) {
	var treeErr error
	retries, err := p.guard.DoCount(ctx, path, func() error {
		treeErr = nil
		run.Steps = nil
		data, err := p.store.Read(path)
		if err != nil {
			return err
		}
		if p.isProduced(path, data) {
			run.Checksum = checksum.Sum(data)
			return nil
		}
		decoded, err := metadata.Decode(data)
		if err != nil {
			return err
		}

		content := decoded
		if p.cfg.Strategy.UsesPattern() {
			if next, changed := p.cfg.Pattern.Rewrite(string(content)); changed {
				content = []byte(next)
				run.Steps = append(run.Steps, models.StepPattern)
			}
		}
		if p.cfg.Strategy.UsesTree() {
			next, res, err := p.cfg.Tree.Rewrite(content)
			switch {
			case err != nil:
				if len(run.Steps) == 0 {
					return err
				}
				treeErr = err
			case res.Changed:
				content = next
				run.Steps = append(run.Steps, models.StepStructural)
			}
			if res.Skipped > 0 {
				p.logger.Warn("pipeline: pieces with unreadable length skipped",
					slog.String("path", path), slog.Int("count", res.Skipped))
			}
		}

		if len(run.Steps) == 0 {
			run.Checksum = checksum.Sum(data)
			return nil
		}
		run.Checksum = checksum.Sum(content)
		p.remember(path, content)
		return p.store.Write(path, content)
	})
	if err == nil && treeErr != nil {
		run.Error = treeErr.Error()
		p.logger.Warn("pipeline: structural step skipped", slog.String("path", path), slog.String("error", treeErr.Error()))
	}
	if err != nil && !errors.Is(err, apperr.ErrMalformed) && !errors.Is(err, os.ErrNotExist) {
		err = fmt.Errorf("metadata %s: %w", filepath.Base(path), err)
	}
	return retries, err
}

func (p *Processor) remember(path string, content []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.produced) >= maxProduced {
		clear(p.produced)
	}
	p.produced[path] = checksum.Sum(content)
}

func (p *Processor) forget(path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.produced, path)
}

func (p *Processor) isProduced(path string, data []byte) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	sum, ok := p.produced[path]
	return ok && sum == checksum.Sum(data)
}
