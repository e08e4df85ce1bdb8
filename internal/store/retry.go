package store

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"time"

	"github.com/lib/pq"
)

const (
	txAttempts  = 3
	txBaseDelay = 20 * time.Millisecond
)

// transient reports whether Postgres aborted the transaction for a reason
// that a clean re-run can fix: a deadlock between row locks or a
// serialization failure.
func transient(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	switch pqErr.Code {
	case "40P01", "40001": // deadlock_detected, serialization_failure
		return true
	}
	return false
}

// retryTx re-runs fn while it fails transiently, doubling the delay each
// time with +-25% jitter. Domain errors are returned on the first attempt.
// Cancellation during backoff surfaces as ledger.ErrUnavailable.
func retryTx(ctx context.Context, attempts int, base time.Duration, fn func() error) error {
	if attempts <= 0 {
		attempts = 1
	}

	var err error
	delay := base
	for attempt := 0; attempt < attempts; attempt++ {
		err = fn()
		if err == nil || !transient(err) || attempt == attempts-1 {
			return err
		}

		jitter := delay / 4
		sleep := delay - jitter + time.Duration(jitterN(int64(2*jitter+1)))
		select {
		case <-ctx.Done():
			return dbError("retry backoff", ctx.Err())
		case <-time.After(sleep):
		}
		delay *= 2
	}
	return err
}

// jitterN returns a random int64 in [0, n).
func jitterN(n int64) int64 {
	if n <= 0 {
		return 0
	}
	var b [8]byte
	_, _ = rand.Read(b[:])
	v := binary.LittleEndian.Uint64(b[:]) >> 1
	return int64(v % uint64(n)) //nolint:gosec // n>0
}
