// Package service exposes the read and trigger operations shared by the HTTP
// API and the MCP server.
package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/starford/beamline/internal/apperr"
	"github.com/starford/beamline/internal/ident"
	"github.com/starford/beamline/internal/journal"
	"github.com/starford/beamline/internal/models"
)

// Submitter queues file events for processing.
type Submitter interface {
	Accepts(ev models.FileEvent) bool
	Submit(ctx context.Context, ev models.FileEvent) error
	Pending() int
}

// Roots tells whether a path lies inside a watched folder.
type Roots interface {
	Roots() []string
	Contains(path string) bool
}

// StatsView is the payload of the stats endpoint.
type StatsView struct {
	models.Stats
	Pending int `json:"pending"`
	Folders int `json:"folders"`
}

// Identifier shows both normalizations of one identifier.
type Identifier struct {
	Input  string `json:"input"`
	Rich   string `json:"rich"`
	Legacy string `json:"legacy"`
}

// Service coordinates the journal, the dispatcher and the watched folders.
type Service struct {
	journal journal.Journal
	queue   Submitter
	roots   Roots
}

// NewService creates a new service.
func NewService(j journal.Journal, queue Submitter, roots Roots) *Service {
	return &Service{journal: j, queue: queue, roots: roots}
}

// RecentRuns returns the newest runs, optionally for one path.
func (s *Service) RecentRuns(_ context.Context, limit int, path string) ([]models.Run, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	runs, err := s.journal.Recent(limit, path)
	if err != nil {
		return nil, err
	}
	if runs == nil {
		runs = []models.Run{}
	}
	return runs, nil
}

// Run returns a single run by ID.
func (s *Service) Run(_ context.Context, id string) (*models.Run, error) {
	return s.journal.Get(id)
}

// Stats summarizes the journal and the live queue.
func (s *Service) Stats(_ context.Context) (StatsView, error) {
	st, err := s.journal.Stats()
	if err != nil {
		return StatsView{}, err
	}
	return StatsView{Stats: st, Pending: s.queue.Pending(), Folders: len(s.roots.Roots())}, nil
}

// Folders lists the watched folders.
func (s *Service) Folders(_ context.Context) []string {
	return s.roots.Roots()
}

// ProcessFile queues path as if it had just been created.
func (s *Service) ProcessFile(ctx context.Context, path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return fmt.Errorf("path is required: %w", apperr.ErrNotFound)
	}
	if !s.roots.Contains(path) {
		return fmt.Errorf("%s: %w", path, apperr.ErrOutsideRoots)
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%s: %w", path, apperr.ErrNotFound)
		}
		return err
	}
	ev := models.FileEvent{Path: path, Kind: models.Created, IsDir: info.IsDir()}
	if !s.queue.Accepts(ev) {
		return fmt.Errorf("%s: %w", path, apperr.ErrUnsupported)
	}
	return s.queue.Submit(ctx, ev)
}

// NormalizeIdentifier returns both variants of id.
func NormalizeIdentifier(id string) Identifier {
	return Identifier{
		Input:  id,
		Rich:   ident.Normalize(id, ident.Rich),
		Legacy: ident.Normalize(id, ident.Legacy),
	}
}
