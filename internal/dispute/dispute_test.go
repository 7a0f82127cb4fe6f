package dispute

import (
	"context"
	"errors"
	"testing"

	"github.com/chorebay/chorebay/internal/chore"
	"github.com/chorebay/chorebay/internal/escrow"
	"github.com/chorebay/chorebay/internal/processor"
)

type stubAccounts struct{}

func (stubAccounts) PayoutAccountID(ctx context.Context, userID string) (string, error) {
	return "acc_" + userID, nil
}

type fixture struct {
	chores   *chore.Service
	escrow   *escrow.Service
	disputes *Service
	gateway  *processor.MockGateway
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	choreStore := chore.NewMemoryStore()
	chores := chore.NewService(choreStore)
	gw := processor.NewMockGateway()
	escrowSvc := escrow.NewService(escrow.NewMemoryStore(), chores, gw, stubAccounts{}, "INR")
	disputes := NewService(NewMemoryStore(choreStore), chores, escrowSvc)
	chores.WithDisputeChecker(disputes).WithReleaser(escrowSvc)
	return &fixture{chores: chores, escrow: escrowSvc, disputes: disputes, gateway: gw}
}

// fundedChore builds a chore whose escrow has been captured.
func (f *fixture) fundedChore(t *testing.T) *chore.Chore {
	t.Helper()
	ctx := context.Background()

	c, err := f.chores.Create(ctx, "usr_owner", chore.CreateRequest{Title: "Fix the sink", Budget: 60000})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := f.chores.Assign(ctx, "usr_owner", c.ID, "usr_worker", 60000); err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	_, order, err := f.escrow.CreateOrder(ctx, "usr_owner", c.ID, 0)
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}
	if _, err := f.escrow.ApplyCaptured(ctx, order.ID, "pay_proc_"+c.ID, ""); err != nil {
		t.Fatalf("ApplyCaptured failed: %v", err)
	}
	return c
}

func TestOpenDispute(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.fundedChore(t)

	d, err := f.disputes.Open(ctx, "usr_worker", c.ID, "owner unresponsive")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if d.Status != StatusOpen {
		t.Errorf("expected OPEN, got %s", d.Status)
	}
	open, _ := f.disputes.HasOpenDispute(ctx, c.ID)
	if !open {
		t.Error("expected open dispute to be visible")
	}
}

func TestOpenDisputeRejectsStranger(t *testing.T) {
	f := newFixture(t)
	c := f.fundedChore(t)

	if _, err := f.disputes.Open(context.Background(), "usr_stranger", c.ID, "x"); !errors.Is(err, ErrNotParty) {
		t.Errorf("expected ErrNotParty, got %v", err)
	}
}

func TestSingleOpenDisputePerChore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.fundedChore(t)

	if _, err := f.disputes.Open(ctx, "usr_owner", c.ID, "first"); err != nil {
		t.Fatalf("first Open failed: %v", err)
	}
	if _, err := f.disputes.Open(ctx, "usr_worker", c.ID, "second"); !errors.Is(err, ErrDisputeExists) {
		t.Errorf("expected ErrDisputeExists, got %v", err)
	}
}

func TestOpenDisputeBlocksApproval(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.fundedChore(t)
	_, _ = f.chores.Start(ctx, "usr_worker", c.ID)
	_, _ = f.chores.Complete(ctx, "usr_worker", c.ID)

	if _, err := f.disputes.Open(ctx, "usr_worker", c.ID, "payment concern"); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, err := f.chores.Approve(ctx, "usr_owner", c.ID); !errors.Is(err, chore.ErrDisputeOpen) {
		t.Errorf("expected approval blocked, got %v", err)
	}
}

func TestResolveRefundClient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.fundedChore(t)
	d, _ := f.disputes.Open(ctx, "usr_owner", c.ID, "work never started")

	resolved, err := f.disputes.Resolve(ctx, "usr_admin", d.ID, Resolution{
		Action: ActionRefundClient, Notes: "worker no-show",
	})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if resolved.Status != StatusResolvedRefundClient {
		t.Errorf("expected RESOLVED_REFUND_CLIENT, got %s", resolved.Status)
	}
	if resolved.RefundID == "" {
		t.Error("expected a refund ID on the resolution")
	}
	if resolved.AmountRefunded != 60000 {
		t.Errorf("expected the full 60000 refunded, got %d", resolved.AmountRefunded)
	}
	if f.gateway.Refunded("pay_proc_"+c.ID) == "" {
		t.Error("expected the processor refund to have been issued")
	}

	got, _ := f.chores.Get(ctx, c.ID)
	if got.Status != chore.StatusCancelled {
		t.Errorf("expected chore CANCELLED, got %s", got.Status)
	}
	if got.EscrowState != chore.EscrowRefunded {
		t.Errorf("expected escrow REFUNDED, got %s", got.EscrowState)
	}

	open, _ := f.disputes.HasOpenDispute(ctx, c.ID)
	if open {
		t.Error("resolved dispute must not block the chore")
	}
}

func TestResolveRefundWithoutCapturedPaymentDegrades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Assigned but never funded: nothing to refund.
	c, _ := f.chores.Create(ctx, "usr_owner", chore.CreateRequest{Title: "x", Budget: 10000})
	_, _ = f.chores.Assign(ctx, "usr_owner", c.ID, "usr_worker", 10000)
	d, _ := f.disputes.Open(ctx, "usr_owner", c.ID, "changed my mind")

	resolved, err := f.disputes.Resolve(ctx, "usr_admin", d.ID, Resolution{Action: ActionRefundClient})
	if err != nil {
		t.Fatalf("Resolve must degrade to state-only: %v", err)
	}
	if resolved.RefundID != "" {
		t.Errorf("expected no refund ID, got %q", resolved.RefundID)
	}
	got, _ := f.chores.Get(ctx, c.ID)
	if got.Status != chore.StatusCancelled {
		t.Errorf("expected CANCELLED, got %s", got.Status)
	}
	if got.EscrowState != chore.EscrowUnpaid {
		t.Errorf("escrow must be left as-is, got %s", got.EscrowState)
	}
}

func TestResolvePayWorker(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.fundedChore(t)
	_, _ = f.chores.Start(ctx, "usr_worker", c.ID)
	_, _ = f.chores.Complete(ctx, "usr_worker", c.ID)
	d, _ := f.disputes.Open(ctx, "usr_worker", c.ID, "owner refuses to approve")

	resolved, err := f.disputes.Resolve(ctx, "usr_admin", d.ID, Resolution{
		Action: ActionPayWorker, Notes: "work verified",
	})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if resolved.Status != StatusResolvedPayWorker {
		t.Errorf("expected RESOLVED_PAY_WORKER, got %s", resolved.Status)
	}

	got, _ := f.chores.Get(ctx, c.ID)
	if got.Status != chore.StatusClosed {
		t.Errorf("expected CLOSED, got %s", got.Status)
	}
	if got.EscrowState != chore.EscrowSettled {
		t.Errorf("expected SETTLED, got %s", got.EscrowState)
	}
	if got.ClosedAt == nil {
		t.Error("expected ClosedAt to be set")
	}
}

func TestResolveManual(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.fundedChore(t)
	d, _ := f.disputes.Open(ctx, "usr_owner", c.ID, "settled offline")

	resolved, err := f.disputes.Resolve(ctx, "usr_admin", d.ID, Resolution{
		Action: ActionManual, Notes: "parties agreed in person",
	})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if resolved.Status != StatusResolvedManual {
		t.Errorf("expected RESOLVED_MANUAL, got %s", resolved.Status)
	}

	// An out-of-band settlement records the verdict and nothing else: the
	// chore keeps its status and escrow state.
	got, _ := f.chores.Get(ctx, c.ID)
	if got.Status != chore.StatusFunded {
		t.Errorf("expected chore left FUNDED, got %s", got.Status)
	}
	if got.EscrowState != chore.EscrowFunded {
		t.Errorf("expected escrow untouched (FUNDED), got %s", got.EscrowState)
	}
	open, _ := f.disputes.HasOpenDispute(ctx, c.ID)
	if open {
		t.Error("resolved dispute must no longer block the chore")
	}
}

func TestResolvePartialRefund(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.fundedChore(t)
	d, _ := f.disputes.Open(ctx, "usr_owner", c.ID, "half the fence is unpainted")

	resolved, err := f.disputes.Resolve(ctx, "usr_admin", d.ID, Resolution{
		Action:                 ActionRefundClient,
		Notes:                  "refund half",
		AmountRefunded:         30000,
		WorkerPayoutAdjustment: -30000,
	})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if resolved.AmountRefunded != 30000 {
		t.Errorf("expected 30000 recorded as refunded, got %d", resolved.AmountRefunded)
	}
	if resolved.WorkerPayoutAdjustment != -30000 {
		t.Errorf("expected -30000 adjustment, got %d", resolved.WorkerPayoutAdjustment)
	}
	if resolved.RefundID == "" {
		t.Error("expected a refund ID")
	}
	if f.gateway.Refunded("pay_proc_"+c.ID) == "" {
		t.Error("expected the processor refund to have been issued")
	}
}

func TestResolveRejectsExcessRefund(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.fundedChore(t)
	d, _ := f.disputes.Open(ctx, "usr_owner", c.ID, "x")

	_, err := f.disputes.Resolve(ctx, "usr_admin", d.ID, Resolution{
		Action:         ActionRefundClient,
		AmountRefunded: 60001,
	})
	if !errors.Is(err, escrow.ErrInvalidRefundAmount) {
		t.Fatalf("expected ErrInvalidRefundAmount, got %v", err)
	}
	got, _ := f.disputes.Get(ctx, d.ID)
	if got.Status != StatusOpen {
		t.Errorf("rejected resolution must leave the dispute open, got %s", got.Status)
	}
}

func TestResolveLeavesCancelledChoreCancelled(t *testing.T) {
	// A chore cancelled while its dispute was pending must not be reopened
	// or re-closed by the verdict.
	f := newFixture(t)
	ctx := context.Background()

	c, _ := f.chores.Create(ctx, "usr_owner", chore.CreateRequest{Title: "x", Budget: 10000})
	_, _ = f.chores.Assign(ctx, "usr_owner", c.ID, "usr_worker", 10000)
	d, _ := f.disputes.Open(ctx, "usr_worker", c.ID, "never got started")
	if _, err := f.chores.Cancel(ctx, "usr_owner", c.ID); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}

	resolved, err := f.disputes.Resolve(ctx, "usr_admin", d.ID, Resolution{Action: ActionPayWorker})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if resolved.Status != StatusResolvedPayWorker {
		t.Errorf("expected RESOLVED_PAY_WORKER, got %s", resolved.Status)
	}

	got, _ := f.chores.Get(ctx, c.ID)
	if got.Status != chore.StatusCancelled {
		t.Errorf("expected chore to stay CANCELLED, got %s", got.Status)
	}
}

func TestResolveRejectsDoubleResolution(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.fundedChore(t)
	d, _ := f.disputes.Open(ctx, "usr_owner", c.ID, "x")

	if _, err := f.disputes.Resolve(ctx, "usr_admin", d.ID, Resolution{Action: ActionManual}); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if _, err := f.disputes.Resolve(ctx, "usr_admin", d.ID, Resolution{Action: ActionRefundClient}); !errors.Is(err, ErrAlreadyResolved) {
		t.Errorf("expected ErrAlreadyResolved, got %v", err)
	}
}

func TestResolveRejectsUnknownAction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.fundedChore(t)
	d, _ := f.disputes.Open(ctx, "usr_owner", c.ID, "x")

	if _, err := f.disputes.Resolve(ctx, "usr_admin", d.ID, Resolution{Action: Action("SPLIT")}); !errors.Is(err, ErrInvalidAction) {
		t.Errorf("expected ErrInvalidAction, got %v", err)
	}
}

func TestReviewTransition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.fundedChore(t)
	d, _ := f.disputes.Open(ctx, "usr_owner", c.ID, "x")

	got, err := f.disputes.Review(ctx, "usr_admin", d.ID)
	if err != nil {
		t.Fatalf("Review failed: %v", err)
	}
	if got.Status != StatusInReview {
		t.Errorf("expected IN_REVIEW, got %s", got.Status)
	}
	// IN_REVIEW still blocks approval.
	open, _ := f.disputes.HasOpenDispute(ctx, c.ID)
	if !open {
		t.Error("IN_REVIEW dispute must still count as open")
	}
	// Reviewing twice is a no-op.
	if _, err := f.disputes.Review(ctx, "usr_admin", d.ID); err != nil {
		t.Errorf("second Review errored: %v", err)
	}
}

func TestDisputeOnTerminalChoreRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c, _ := f.chores.Create(ctx, "usr_owner", chore.CreateRequest{Title: "x", Budget: 1000})
	_, _ = f.chores.Cancel(ctx, "usr_owner", c.ID)

	if _, err := f.disputes.Open(ctx, "usr_owner", c.ID, "x"); !errors.Is(err, ErrChoreClosed) {
		t.Errorf("expected ErrChoreClosed, got %v", err)
	}
}
