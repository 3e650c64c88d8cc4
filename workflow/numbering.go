/*
numbering.go - Sequential document numbers with bounded retry

PURPOSE:
  Obtains a unique, human-readable document number from an external counter
  and commits the new record. Two concurrent submissions can race for the
  same counter value; the retry loop is the concurrency-safety mechanism,
  not a locking primitive. The generator tolerates and recovers from a lost
  race rather than preventing it.

RETRY CONTRACT:
  The whole (fetch-number, insert) cycle is retried when the insert reports
  ErrDuplicateNumber, up to MaxAttempts, with a short randomized backoff
  between attempts. Any other insert error aborts immediately and is returned
  unchanged. When all attempts collide the caller gets a NumberExhaustedError
  wrapping the final attempt's underlying error.

SEE ALSO:
  - errors.go: ErrDuplicateNumber, NumberExhaustedError
*/
package workflow

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// NumberKind selects which counter sequence to draw from.
type NumberKind string

// Counter hands out the next human-readable number for a kind within an
// organization. Implementations live with the stores; the production ones
// run an atomic upsert on a counter table.
type Counter interface {
	NextNumber(ctx context.Context, kind NumberKind, orgID string) (string, error)
}

const defaultNumberAttempts = 3

// NumberGenerator runs the fetch+insert cycle with bounded retry.
type NumberGenerator struct {
	Counter     Counter
	MaxAttempts int           // 0 means defaultNumberAttempts
	Backoff     time.Duration // base backoff between attempts, jittered
}

// NewNumberGenerator returns a generator over c with default retry settings.
func NewNumberGenerator(c Counter) *NumberGenerator {
	return &NumberGenerator{Counter: c}
}

// Generate fetches a number and invokes insert with it. insert must persist
// the record carrying the number and return ErrDuplicateNumber (possibly
// wrapped) when the uniqueness constraint rejects it.
func (g *NumberGenerator) Generate(
	ctx context.Context,
	kind NumberKind,
	orgID string,
	insert func(number string) error,
) (string, error) {
	attempts := g.MaxAttempts
	if attempts <= 0 {
		attempts = defaultNumberAttempts
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			if err := g.wait(ctx); err != nil {
				return "", err
			}
		}

		number, err := g.Counter.NextNumber(ctx, kind, orgID)
		if err != nil {
			return "", err
		}

		err = insert(number)
		if err == nil {
			return number, nil
		}
		if !errors.Is(err, ErrDuplicateNumber) {
			return "", err
		}
		lastErr = err
	}

	return "", &NumberExhaustedError{Kind: kind, Attempts: attempts, Last: lastErr}
}

func (g *NumberGenerator) wait(ctx context.Context) error {
	base := g.Backoff
	if base <= 0 {
		base = 25 * time.Millisecond
	}
	// Jitter in [base/2, base*3/2) so two losers do not collide again in lockstep.
	d := base/2 + time.Duration(rand.Int63n(int64(base)))

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
