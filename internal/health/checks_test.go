package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mbd888/p2pescrow/internal/ledger"
	"github.com/mbd888/p2pescrow/internal/reconciliation"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

type fakeLooper bool

func (f fakeLooper) Running() bool { return bool(f) }

type fakeSource struct{ r *reconciliation.Report }

func (f fakeSource) LastReport() *reconciliation.Report { return f.r }

func TestDatabaseChecker(t *testing.T) {
	if s := DatabaseChecker(fakePinger{})(context.Background()); !s.Healthy {
		t.Errorf("expected healthy, got %+v", s)
	}
	s := DatabaseChecker(fakePinger{err: errors.New("connection refused")})(context.Background())
	if s.Healthy || s.Detail != "connection refused" {
		t.Errorf("expected unhealthy with detail, got %+v", s)
	}
}

func TestLoopChecker(t *testing.T) {
	if !LoopChecker(fakeLooper(true))(context.Background()).Healthy {
		t.Error("running loop should be healthy")
	}
	if LoopChecker(fakeLooper(false))(context.Background()).Healthy {
		t.Error("stopped loop should be unhealthy")
	}
}

func TestReconciliationChecker(t *testing.T) {
	ctx := context.Background()
	if s := ReconciliationChecker(fakeSource{})(ctx); !s.Healthy {
		t.Errorf("no run yet should be healthy, got %+v", s)
	}

	clean := &reconciliation.Report{RanAt: time.Now()}
	if s := ReconciliationChecker(fakeSource{clean})(ctx); !s.Healthy {
		t.Errorf("clean report should be healthy, got %+v", s)
	}

	dirty := &reconciliation.Report{
		EscrowMismatches: []reconciliation.EscrowMismatch{{Wallet: ledger.WalletKey{UserID: "u"}}},
	}
	s := ReconciliationChecker(fakeSource{dirty})(ctx)
	if s.Healthy || s.Detail != "1 escrow, 0 journal mismatches" {
		t.Errorf("unexpected status: %+v", s)
	}
}

func TestRegistryFillsName(t *testing.T) {
	r := NewRegistry()
	r.Register("database", DatabaseChecker(fakePinger{}))

	_, statuses := r.CheckAll(context.Background())
	if statuses[0].Name != "database" {
		t.Errorf("expected name database, got %q", statuses[0].Name)
	}
}
