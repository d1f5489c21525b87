package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vietddude/purchasekit/internal/core/domain"
	"github.com/vietddude/purchasekit/internal/infra/appstore"
	"github.com/vietddude/purchasekit/internal/monitor"
	"github.com/vietddude/purchasekit/internal/order"
	"github.com/vietddude/purchasekit/internal/recovery"
	"github.com/vietddude/purchasekit/internal/retry"
)

// =============================================================================
// Mocks
// =============================================================================

type stubOrderClient struct{}

func (stubOrderClient) CreateOrder(ctx context.Context, productID string, params order.CreateParams) (*domain.Order, error) {
	return &domain.Order{ID: "o1", ProductID: productID, Status: domain.OrderStatusPending}, nil
}
func (stubOrderClient) QueryOrderStatus(ctx context.Context, orderID string) (*domain.Order, error) {
	return nil, domain.ErrOrderNotFound
}
func (stubOrderClient) UpdateOrderStatus(ctx context.Context, orderID string, status domain.OrderStatus) error {
	return nil
}
func (stubOrderClient) CancelOrder(ctx context.Context, orderID string) error { return nil }
func (stubOrderClient) CleanupExpiredOrders(ctx context.Context) (int, error) { return 0, nil }
func (stubOrderClient) RecoverPendingOrders(ctx context.Context) ([]*domain.Order, error) {
	return nil, nil
}

type stubValidator struct{}

func (stubValidator) ValidateReceipt(ctx context.Context, data []byte) (domain.ReceiptValidation, error) {
	return domain.ReceiptValidation{Valid: true}, nil
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(ctx context.Context) error { return p.err }

type blockingPinger struct {
	entered chan struct{}
	release chan struct{}
}

func (p blockingPinger) Ping(ctx context.Context) error {
	close(p.entered)
	<-p.release
	return nil
}

func newTestChecker() (*Checker, *monitor.Monitor) {
	store := appstore.NewSimAdapter(nil)
	retries := retry.NewManager(retry.DefaultConfig())
	orders := order.NewService(stubOrderClient{}, retries, nil)
	rec := recovery.NewManager(recovery.DefaultConfig(), store, orders, stubValidator{}, retries, nil, nil)
	mon := monitor.NewMonitor(monitor.Config{PollInterval: time.Hour}, store, rec)
	return NewChecker(mon, rec, retries), mon
}

// =============================================================================
// Tests
// =============================================================================

func TestChecker_DegradedWhenMonitorStopped(t *testing.T) {
	checker, _ := newTestChecker()

	report := checker.CheckHealth(context.Background())
	if report.SystemStatus != StatusDegraded {
		t.Errorf("expected degraded while monitor stopped, got %s", report.SystemStatus)
	}
	if report.Components["monitor"].Status != StatusDegraded {
		t.Errorf("expected degraded monitor component, got %s", report.Components["monitor"].Status)
	}
}

func TestChecker_HealthyWhenMonitoring(t *testing.T) {
	checker, mon := newTestChecker()
	if err := mon.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer mon.Stop()

	report := checker.CheckHealth(context.Background())
	if report.SystemStatus != StatusHealthy {
		t.Errorf("expected healthy, got %s", report.SystemStatus)
	}
}

func TestChecker_HungPingDoesNotBlockRegistry(t *testing.T) {
	checker, _ := newTestChecker()
	p := blockingPinger{entered: make(chan struct{}), release: make(chan struct{})}
	checker.AddPinger("database", p)

	go checker.CheckHealth(context.Background())
	<-p.entered

	added := make(chan struct{})
	go func() {
		checker.AddPinger("redis", stubPinger{})
		close(added)
	}()
	select {
	case <-added:
	case <-time.After(time.Second):
		t.Fatal("AddPinger blocked behind a hung ping")
	}
	close(p.release)
}

func TestChecker_CriticalWhenPingerFails(t *testing.T) {
	checker, mon := newTestChecker()
	if err := mon.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer mon.Stop()

	checker.AddPinger("database", stubPinger{err: errors.New("connection refused")})

	report := checker.CheckHealth(context.Background())
	if report.SystemStatus != StatusCritical {
		t.Errorf("expected critical, got %s", report.SystemStatus)
	}
	if report.Components["database"].Error == "" {
		t.Error("expected ping error surfaced in report")
	}
}
