package security

import (
	"context"
	"errors"
	"runtime"
	"time"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

const DefaultCost = 10

// HashObserver receives the duration of every hash or compare. Prometheus
// metrics implement it; nil disables reporting.
type HashObserver interface {
	ObserveHash(op string, d time.Duration, err error)
	HashSlotsInUse(delta float64)
}

// Hasher runs bcrypt on a bounded number of slots so a burst of logins cannot
// starve the rest of the process of CPU.
type Hasher struct {
	cost  int
	slots *semaphore.Weighted
	obs   HashObserver
	dummy []byte
}

func NewHasher(cost, concurrency int, obs HashObserver) (*Hasher, error) {
	if cost == 0 {
		cost = DefaultCost
	}

	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, bcrypt.InvalidCostError(cost)
	}

	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}

	// compared against when the user does not exist, so both paths pay for one bcrypt run
	dummy, err := bcrypt.GenerateFromPassword([]byte("identityhub-missing-user"), cost)

	if err != nil {
		return nil, err
	}

	return &Hasher{
		cost:  cost,
		slots: semaphore.NewWeighted(int64(concurrency)),
		obs:   obs,
		dummy: dummy,
	}, nil
}

// HashPassword hashes a plain text password with bcrypt and a fresh salt.
func (h *Hasher) HashPassword(ctx context.Context, plain string) (string, error) {
	var hash []byte

	err := h.run(ctx, "hash", func() error {
		var e error
		hash, e = bcrypt.GenerateFromPassword([]byte(plain), h.cost)
		return e
	})

	if err != nil {
		return "", err
	}

	return string(hash), nil
}

// CheckPassword reports whether plain matches hash. A mismatch is (false, nil);
// an error means the stored hash could not be used at all.
func (h *Hasher) CheckPassword(ctx context.Context, plain, hash string) (bool, error) {
	err := h.run(ctx, "compare", func() error {
		return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))
	})

	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}

	if err != nil {
		return false, err
	}

	return true, nil
}

// CheckMissing burns one compare against a fixed hash. Used when the account
// does not exist so that the response time matches a wrong password.
func (h *Hasher) CheckMissing(ctx context.Context, plain string) {
	_ = h.run(ctx, "compare", func() error {
		return bcrypt.CompareHashAndPassword(h.dummy, []byte(plain))
	})
}

func (h *Hasher) run(ctx context.Context, op string, fn func() error) error {
	if err := h.slots.Acquire(ctx, 1); err != nil {
		return err
	}

	h.slotDelta(1)

	done := make(chan error, 1)

	go func() {
		defer func() {
			h.slotDelta(-1)
			h.slots.Release(1)
		}()

		start := time.Now()
		err := fn()

		if h.obs != nil {
			h.obs.ObserveHash(op, time.Since(start), err)
		}
		done <- err
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		// bcrypt cannot be interrupted; the slot is released once it finishes
		return ctx.Err()
	}
}

func (h *Hasher) slotDelta(d float64) {
	if h.obs != nil {
		h.obs.HashSlotsInUse(d)
	}
}
