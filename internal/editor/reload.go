package editor

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/exp/slices"
	"golang.org/x/sync/errgroup"

	"github.com/kingrea/pzedit/internal/deps"
	"github.com/kingrea/pzedit/internal/eventbridge"
	"github.com/kingrea/pzedit/internal/mutation"
)

// Reload reports what one asset event did to the open scene.
type Reload struct {
	EventID string
	Type    string
	Assets  []string
	// Missing lists assets that could not be read.
	Missing []string
	// Reconstructed lists components rebuilt in place, sorted.
	Reconstructed []string
	// Skipped lists dependents left untouched: their asset is missing or
	// deleted, or they have no live instance.
	Skipped []string
}

// HandleAssetEvent applies ev to the open scene. For an update it reads
// every affected asset concurrently, then reconstructs each dependent
// component whose assets are all readable, in component id order, and
// waits for the rebuilds to be wired.
func (s *Session) HandleAssetEvent(ctx context.Context, ev eventbridge.Event) (Reload, error) {
	ev.Normalize()
	if err := ev.Validate(); err != nil {
		return Reload{}, fmt.Errorf("editor: asset event %s: %w", ev.EventID, err)
	}
	report := Reload{EventID: ev.EventID, Type: ev.Type, Assets: ev.AssetIDs}
	if ev.Type == eventbridge.TypeShutdown || s.ctx.Scene == nil {
		return report, nil
	}

	dependents := s.ctx.Deps.DependentsOf(ev.AssetIDs...)
	sort.SliceStable(dependents, func(i, j int) bool {
		return dependents[i].ComponentID() < dependents[j].ComponentID()
	})
	if len(dependents) == 0 {
		return report, nil
	}

	if ev.Type == eventbridge.TypeAssetDeleted {
		for _, dep := range dependents {
			report.Skipped = append(report.Skipped, dep.ComponentID())
			s.diagnostics.Warn("reload %s: %s depends on deleted assets %v", ev.EventID, dep.ComponentID(), overlap(dep, ev.AssetIDs))
		}
		return report, nil
	}

	missing, err := s.probeAssets(ctx, ev.AssetIDs)
	if err != nil {
		return report, err
	}
	report.Missing = missing

	for _, dep := range dependents {
		id := dep.ComponentID()
		if lost := overlap(dep, missing); len(lost) > 0 {
			s.diagnostics.Warn("reload %s: keeping %s, assets unreadable: %v", ev.EventID, id, lost)
			report.Skipped = append(report.Skipped, id)
			continue
		}
		if !mutation.Reconstruct(s.ctx, dep.Component, nil) {
			report.Skipped = append(report.Skipped, id)
			continue
		}
		report.Reconstructed = append(report.Reconstructed, id)
	}
	if err := s.ctx.Settle(ctx); err != nil {
		return report, fmt.Errorf("editor: reload %s: %w", ev.EventID, err)
	}
	s.diagnostics.Info("reload %s: %d reconstructed, %d skipped", ev.EventID, len(report.Reconstructed), len(report.Skipped))
	return report, nil
}

// probeAssets reads ids concurrently and returns the sorted ids that could
// not be read.
func (s *Session) probeAssets(ctx context.Context, ids []string) ([]string, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.loadLimit)
	var (
		mu      sync.Mutex
		missing []string
	)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if _, err := s.store.Read(id); err != nil {
				mu.Lock()
				missing = append(missing, id)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("editor: read assets: %w", err)
	}
	slices.Sort(missing)
	return missing, nil
}

func overlap(dep *deps.Dependency, ids []string) []string {
	var out []string
	for _, asset := range dep.AssetIDs {
		if slices.Contains(ids, asset) {
			out = append(out, asset)
		}
	}
	return out
}

// Pump applies events to s until events is closed, a shutdown event
// arrives or ctx ends. onReload, when set, sees every outcome; without it
// failures are written to the diagnostics logbook.
func Pump(ctx context.Context, s *Session, events <-chan eventbridge.Event, onReload func(Reload, error)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if ev.Type == eventbridge.TypeShutdown {
				return nil
			}
			s.Poll()
			report, err := s.HandleAssetEvent(ctx, ev)
			if onReload != nil {
				onReload(report, err)
			} else if err != nil {
				s.diagnostics.Error("%v", err)
			}
		}
	}
}
