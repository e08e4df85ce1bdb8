package health

import (
	"context"
	"fmt"
	"time"

	"github.com/mbd888/p2pescrow/internal/reconciliation"
)

// Pinger is satisfied by stores that can test their connection.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Looper is satisfied by background timers.
type Looper interface {
	Running() bool
}

// ReportSource exposes the latest reconciliation report.
type ReportSource interface {
	LastReport() *reconciliation.Report
}

// DatabaseChecker pings the store with a short timeout.
func DatabaseChecker(p Pinger) Checker {
	return func(ctx context.Context) Status {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			return Status{Healthy: false, Detail: err.Error()}
		}
		return Status{Healthy: true}
	}
}

// LoopChecker reports unhealthy when a background loop has stopped.
func LoopChecker(l Looper) Checker {
	return func(context.Context) Status {
		if !l.Running() {
			return Status{Healthy: false, Detail: "not running"}
		}
		return Status{Healthy: true}
	}
}

// ReconciliationChecker reports the last reconciliation outcome. No run
// yet counts as healthy.
func ReconciliationChecker(src ReportSource) Checker {
	return func(context.Context) Status {
		r := src.LastReport()
		if r == nil {
			return Status{Healthy: true, Detail: "no run yet"}
		}
		if !r.Healthy() {
			return Status{
				Healthy: false,
				Detail: fmt.Sprintf("%d escrow, %d journal mismatches",
					len(r.EscrowMismatches), len(r.JournalMismatches)),
			}
		}
		return Status{Healthy: true, Detail: "last run " + r.RanAt.Format(time.RFC3339)}
	}
}
