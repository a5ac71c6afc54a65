package orderid

import (
	"context"
	"fmt"
	"time"

	"github.com/riftvanta/tms062025/internal/errs"
)

// Order identifiers look like T2506 0001: a literal T, two-digit year,
// two-digit month and a four-digit sequence that restarts every month.
// The month is always taken in the Amman timezone so the counter key
// does not depend on where the server happens to run.

const ammanTZ = "Asia/Amman"

const maxMonthlySequence = 9999

type CounterStore interface {
	// NextSequence atomically increments the counter behind key and
	// returns the post-increment value. A missing counter counts as 0,
	// so the first call for a key returns 1.
	NextSequence(ctx context.Context, key string) (int, error)
}

type Allocator struct {
	store CounterStore
	loc   *time.Location
}

func NewAllocator(store CounterStore) (*Allocator, error) {
	loc, err := time.LoadLocation(ammanTZ)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", ammanTZ, err)
	}
	return &Allocator{store: store, loc: loc}, nil
}

// Allocate produces the order identifier for an order created at now.
// It must not be retried around a partially created order: either the
// returned id is used for exactly one insert or it is discarded.
func (a *Allocator) Allocate(ctx context.Context, now time.Time) (string, error) {
	local := now.In(a.loc)

	seq, err := a.store.NextSequence(ctx, counterKey(local))
	if err != nil {
		return "", fmt.Errorf("%w: %v", errs.ErrAllocation, err)
	}

	if seq > maxMonthlySequence {
		return "", errs.ErrSequenceExhausted
	}

	return fmt.Sprintf("T%02d%02d%04d", local.Year()%100, int(local.Month()), seq), nil
}

func counterKey(local time.Time) string {
	return fmt.Sprintf("orders_%02d%02d", local.Year()%100, int(local.Month()))
}

// Valid reports whether id is a well-formed order identifier. It checks
// shape only, not whether the id was ever allocated.
func Valid(id string) bool {
	if len(id) != 9 || id[0] != 'T' {
		return false
	}
	for i := 1; i < len(id); i++ {
		if id[i] < '0' || id[i] > '9' {
			return false
		}
	}
	month := int(id[3]-'0')*10 + int(id[4]-'0')
	if month < 1 || month > 12 {
		return false
	}
	seq := 0
	for i := 5; i < 9; i++ {
		seq = seq*10 + int(id[i]-'0')
	}
	return seq >= 1
}
