package pipeline

import (
	"context"
	"slices"
	"time"

	"github.com/starford/beamline/internal/models"
)

const minSettleTick = 10 * time.Millisecond

type settleEntry struct {
	ev  models.FileEvent
	due time.Time
}

// hold parks ev until its path has been quiet for the settle window, pushing
// the deadline out if the path is already waiting. A waiting Created event
// stays Created whatever arrives after it. Events that lead to no work only
// extend a path that is already waiting; hold reports false for them
// otherwise.
func (d *Dispatcher) hold(ev models.FileEvent, accepted bool) bool {
	d.settleMu.Lock()
	defer d.settleMu.Unlock()
	cur, waiting := d.settling[ev.Path]
	if !waiting && !accepted {
		return false
	}
	if waiting && (!accepted || cur.ev.Kind == models.Created) {
		ev = cur.ev
	}
	d.settling[ev.Path] = settleEntry{ev: ev, due: time.Now().Add(d.settle)}
	return true
}

// due removes and returns the events whose window closed at or before now,
// oldest deadline first.
func (d *Dispatcher) due(now time.Time) []models.FileEvent {
	d.settleMu.Lock()
	defer d.settleMu.Unlock()
	var ready []settleEntry
	for path, e := range d.settling {
		if !e.due.After(now) {
			ready = append(ready, e)
			delete(d.settling, path)
		}
	}
	slices.SortFunc(ready, func(a, b settleEntry) int { return a.due.Compare(b.due) })
	out := make([]models.FileEvent, len(ready))
	for i, e := range ready {
		out[i] = e.ev
	}
	return out
}

// dropSettling forgets every parked event and returns how many there were.
func (d *Dispatcher) dropSettling() int {
	d.settleMu.Lock()
	defer d.settleMu.Unlock()
	n := len(d.settling)
	clear(d.settling)
	return n
}

// settleLoop moves events whose path went quiet onto the queue until ctx is
// cancelled.
func (d *Dispatcher) settleLoop(ctx context.Context) {
	tick := max(d.settle/4, minSettleTick)
	t := time.NewTicker(tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			ready := d.due(now)
			for i, ev := range ready {
				select {
				case d.queue <- ev:
					d.metrics.QueueDepth(len(d.queue))
				case <-ctx.Done():
					d.metrics.Dropped(len(ready) - i)
					return
				}
			}
		}
	}
}
