package main

import (
	"context"
	"errors"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/tradeshop/api/internal/platform/config"
	"github.com/tradeshop/api/internal/services"
)

func TestRequiredSecretNames(t *testing.T) {
	got := requiredSecretNames(map[string]string{
		"API_PAYMENTS_STRIPE_API_KEY":        "secret://stripe/key",
		"API_PAYMENTS_AUTHORIZENET_LOGIN_ID": "login",
	})
	want := []string{
		"Database.DSN",
		"Payments.AuthorizeNet.TransactionKey",
		"Payments.Stripe.APIKey",
		"Payments.Stripe.WebhookSecret",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected required secrets %v", got)
	}
}

func TestSecretVersionPins(t *testing.T) {
	pins := secretVersionPins("prod:sm://stripe/key=3, db/dsn=7, broken")
	if pins["prod:secret://stripe/key"] != "3" {
		t.Fatalf("expected environment-scoped pin, got %v", pins)
	}
	if pins["secret://db/dsn"] != "7" {
		t.Fatalf("expected bare pin, got %v", pins)
	}
	if len(pins) != 2 {
		t.Fatalf("expected malformed entries dropped, got %v", pins)
	}
}

func TestBuildInfoFromEnvDefaults(t *testing.T) {
	started := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	info := buildInfoFromEnv(nil, config.Config{}, started)
	if info.Version != "dev" || info.CommitSHA != "unknown" || info.Environment != "local" || !info.StartedAt.Equal(started) {
		t.Fatalf("unexpected build info %+v", info)
	}
}

func TestNewPaymentDispatcherWithoutGateways(t *testing.T) {
	dispatcher, stripe, err := newPaymentDispatcher(config.Config{}, zap.NewNop(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stripe != nil {
		t.Fatalf("expected stripe disabled")
	}
	if dispatcher.Supports("STRIPE") {
		t.Fatalf("expected no stripe registration")
	}
}

type stubSweeper struct {
	calls  atomic.Int32
	report services.SweepReport
	err    error
}

func (s *stubSweeper) SweepStale(context.Context) (services.SweepReport, error) {
	s.calls.Add(1)
	return s.report, s.err
}

func TestOrderSweeperLogsReport(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	stub := &stubSweeper{report: services.SweepReport{Scanned: 4, Failed: 3, Errors: 1}}
	orderSweeper{orders: stub, logger: zap.New(core)}.runOnce(context.Background())

	entries := logs.FilterMessage("order sweep completed").All()
	if len(entries) != 1 {
		t.Fatalf("expected completion log, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["failed"] != int64(3) || fields["scanned"] != int64(4) {
		t.Fatalf("unexpected fields %v", fields)
	}

	stub.err = errors.New("db down")
	orderSweeper{orders: stub, logger: zap.New(core)}.runOnce(context.Background())
	if logs.FilterMessage("order sweep failed").Len() != 1 {
		t.Fatalf("expected failure log")
	}
}

func TestOrderSweeperRunStopsOnCancel(t *testing.T) {
	stub := &stubSweeper{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- orderSweeper{orders: stub, interval: 5 * time.Millisecond}.Run(ctx)
	}()

	deadline := time.After(time.Second)
	for stub.calls.Load() == 0 {
		select {
		case <-deadline:
			t.Fatalf("sweeper never ran")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("sweeper did not stop")
	}
}
