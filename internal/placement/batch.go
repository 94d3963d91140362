package placement

import (
	"context"
	"sync"

	"github.com/couchcryptid/station-globe/internal/domain"
)

type outcome string

const (
	placed        outcome = "placed"
	skipInvalid   outcome = "invalid"
	skipNotFound  outcome = "not_found"
	skipDuplicate outcome = "duplicate"
	skipCancelled outcome = "cancelled"
)

// Summary counts what happened to each station of a batch.
type Summary struct {
	Placed    int
	NotFound  int
	Invalid   int
	Duplicate int
	Cancelled int
}

// Total is the number of stations the batch processed.
func (s Summary) Total() int {
	return s.Placed + s.NotFound + s.Invalid + s.Duplicate + s.Cancelled
}

// Batch is the handle of one Place call.
type Batch struct {
	surfaceID string
	out       chan domain.Placement
	done      chan struct{}
	cancel    context.CancelFunc

	mu      sync.Mutex
	summary Summary
}

// SurfaceID returns the surface the batch places on.
func (b *Batch) SurfaceID() string { return b.surfaceID }

// Placements delivers the batch's placements in completion order. The
// channel is closed once every station has been handled.
func (b *Batch) Placements() <-chan domain.Placement { return b.out }

// Done is closed when the batch has finished.
func (b *Batch) Done() <-chan struct{} { return b.done }

// Cancel stops outstanding work. Stations already emitted stay placed.
func (b *Batch) Cancel() { b.cancel() }

// Wait blocks until the batch has finished and returns its summary.
func (b *Batch) Wait() Summary {
	<-b.done
	return b.Summary()
}

// Summary returns the counts so far.
func (b *Batch) Summary() Summary {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.summary
}

func (b *Batch) record(o outcome) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch o {
	case placed:
		b.summary.Placed++
	case skipNotFound:
		b.summary.NotFound++
	case skipInvalid:
		b.summary.Invalid++
	case skipDuplicate:
		b.summary.Duplicate++
	case skipCancelled:
		b.summary.Cancelled++
	}
}

// Collect drains b and returns its placements once the batch is finished.
func Collect(b *Batch) []domain.Placement {
	var out []domain.Placement
	for p := range b.Placements() {
		out = append(out, p)
	}
	return out
}
