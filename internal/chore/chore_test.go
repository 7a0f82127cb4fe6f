package chore

import (
	"context"
	"errors"
	"testing"
)

func newTestService() (*Service, *MemoryStore) {
	store := NewMemoryStore()
	return NewService(store), store
}

func createAssigned(t *testing.T, svc *Service) *Chore {
	t.Helper()
	ctx := context.Background()

	c, err := svc.Create(ctx, "usr_owner", CreateRequest{Title: "Mow the lawn", Budget: 50000})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	c, err = svc.Assign(ctx, "usr_owner", c.ID, "usr_worker", 45000)
	if err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	return c
}

func TestCreateChore(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	c, err := svc.Create(ctx, "usr_owner", CreateRequest{Title: "Clean garage", Budget: 20000})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if c.Status != StatusPublished {
		t.Errorf("expected PUBLISHED, got %s", c.Status)
	}
	if c.EscrowState != EscrowNone {
		t.Errorf("expected escrow NONE before assignment, got %s", c.EscrowState)
	}
	if c.EffectivePaymentStatus() != "NONE" {
		t.Errorf("expected payment status NONE, got %s", c.EffectivePaymentStatus())
	}
}

func TestCreateChoreRejectsZeroBudget(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.Create(context.Background(), "usr_owner", CreateRequest{Title: "x", Budget: 0})
	if !errors.Is(err, ErrInvalidPrice) {
		t.Errorf("expected ErrInvalidPrice, got %v", err)
	}
}

func TestAssignOpensEscrowPath(t *testing.T) {
	svc, _ := newTestService()

	c := createAssigned(t, svc)
	if c.Status != StatusAssigned {
		t.Errorf("expected ASSIGNED, got %s", c.Status)
	}
	if c.EscrowState != EscrowUnpaid {
		t.Errorf("expected escrow UNPAID after assignment, got %s", c.EscrowState)
	}
	if c.AgreedPrice != 45000 {
		t.Errorf("expected agreed price 45000, got %d", c.AgreedPrice)
	}
	if c.PriceBasis() != 45000 {
		t.Errorf("expected price basis to prefer agreed price, got %d", c.PriceBasis())
	}
}

func TestAssignRejectsOwnerAsWorker(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	c, _ := svc.Create(ctx, "usr_owner", CreateRequest{Title: "x", Budget: 1000})
	_, err := svc.Assign(ctx, "usr_owner", c.ID, "usr_owner", 1000)
	if !errors.Is(err, ErrWorkerSameAsOwner) {
		t.Errorf("expected ErrWorkerSameAsOwner, got %v", err)
	}
}

func TestAssignRequiresOwner(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	c, _ := svc.Create(ctx, "usr_owner", CreateRequest{Title: "x", Budget: 1000})
	_, err := svc.Assign(ctx, "usr_stranger", c.ID, "usr_worker", 1000)
	if !errors.Is(err, ErrNotOwner) {
		t.Errorf("expected ErrNotOwner, got %v", err)
	}
}

func TestStartRequiresFunding(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	c := createAssigned(t, svc)
	if _, err := svc.Start(ctx, "usr_worker", c.ID); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("expected ErrInvalidStatus before funding, got %v", err)
	}

	if err := svc.MarkEscrowFunded(ctx, c.ID); err != nil {
		t.Fatalf("MarkEscrowFunded failed: %v", err)
	}
	got, err := svc.Start(ctx, "usr_worker", c.ID)
	if err != nil {
		t.Fatalf("Start failed after funding: %v", err)
	}
	if got.Status != StatusInProgress {
		t.Errorf("expected IN_PROGRESS, got %s", got.Status)
	}
}

func TestStartRejectsNonWorker(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	c := createAssigned(t, svc)
	_ = svc.MarkEscrowFunded(ctx, c.ID)

	if _, err := svc.Start(ctx, "usr_owner", c.ID); !errors.Is(err, ErrNotWorker) {
		t.Errorf("expected ErrNotWorker, got %v", err)
	}
}

func TestMarkEscrowFundedIdempotent(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	c := createAssigned(t, svc)
	if err := svc.MarkEscrowFunded(ctx, c.ID); err != nil {
		t.Fatalf("first MarkEscrowFunded failed: %v", err)
	}
	if err := svc.MarkEscrowFunded(ctx, c.ID); err != nil {
		t.Fatalf("redelivered MarkEscrowFunded failed: %v", err)
	}

	got, _ := store.Get(ctx, c.ID)
	if got.Status != StatusFunded {
		t.Errorf("expected FUNDED, got %s", got.Status)
	}
	if got.EscrowState != EscrowFunded {
		t.Errorf("expected escrow FUNDED, got %s", got.EscrowState)
	}
}

func TestFundedAfterStartKeepsStatus(t *testing.T) {
	// Capture lands after the worker already started on a redelivery:
	// the escrow state is already FUNDED so nothing moves.
	svc, store := newTestService()
	ctx := context.Background()

	c := createAssigned(t, svc)
	_ = svc.MarkEscrowFunded(ctx, c.ID)
	_, _ = svc.Start(ctx, "usr_worker", c.ID)

	if err := svc.MarkEscrowFunded(ctx, c.ID); err != nil {
		t.Fatalf("redelivered capture errored: %v", err)
	}
	got, _ := store.Get(ctx, c.ID)
	if got.Status != StatusInProgress {
		t.Errorf("expected IN_PROGRESS preserved, got %s", got.Status)
	}
}

func TestReserveEscrowSerializesConcurrentOrders(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	c := createAssigned(t, svc)
	if err := svc.ReserveEscrow(ctx, c.ID); err != nil {
		t.Fatalf("first reservation failed: %v", err)
	}
	if err := svc.ReserveEscrow(ctx, c.ID); !errors.Is(err, ErrNotReservable) {
		t.Errorf("expected ErrNotReservable on second reservation, got %v", err)
	}
}

func TestRevertEscrowReservation(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	c := createAssigned(t, svc)
	_ = svc.ReserveEscrow(ctx, c.ID)
	if err := svc.RevertEscrowReservation(ctx, c.ID); err != nil {
		t.Fatalf("revert failed: %v", err)
	}

	got, _ := store.Get(ctx, c.ID)
	if got.EscrowState != EscrowUnpaid {
		t.Errorf("expected escrow back to UNPAID, got %s", got.EscrowState)
	}
	// Reverting an already-reverted reservation is a no-op.
	if err := svc.RevertEscrowReservation(ctx, c.ID); err != nil {
		t.Errorf("second revert errored: %v", err)
	}
}

type stubDisputes struct {
	open bool
	err  error
}

func (s *stubDisputes) HasOpenDispute(ctx context.Context, choreID string) (bool, error) {
	return s.open, s.err
}

type stubReleaser struct {
	calls int
	err   error
	// settle mimics the real releaser updating escrow state on success
	settle func(choreID string)
}

func (s *stubReleaser) Release(ctx context.Context, choreID, releasedBy string) error {
	s.calls++
	if s.err == nil && s.settle != nil {
		s.settle(choreID)
	}
	return s.err
}

func TestApproveClosesAndReleases(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	rel := &stubReleaser{settle: func(id string) { _ = svc.MarkEscrowSettled(ctx, id) }}
	svc.WithDisputeChecker(&stubDisputes{}).WithReleaser(rel)

	c := createAssigned(t, svc)
	_ = svc.MarkEscrowFunded(ctx, c.ID)
	_, _ = svc.Start(ctx, "usr_worker", c.ID)
	_, _ = svc.Complete(ctx, "usr_worker", c.ID)

	got, err := svc.Approve(ctx, "usr_owner", c.ID)
	if err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
	if got.Status != StatusClosed {
		t.Errorf("expected CLOSED, got %s", got.Status)
	}
	if got.ClosedAt == nil {
		t.Error("expected ClosedAt to be set")
	}
	if rel.calls != 1 {
		t.Errorf("expected one release call, got %d", rel.calls)
	}

	stored, _ := store.Get(ctx, c.ID)
	if stored.EscrowState != EscrowSettled {
		t.Errorf("expected escrow SETTLED, got %s", stored.EscrowState)
	}
}

func TestApproveClosesEvenWhenReleaseFails(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	rel := &stubReleaser{err: errors.New("processor unavailable")}
	svc.WithDisputeChecker(&stubDisputes{}).WithReleaser(rel)

	c := createAssigned(t, svc)
	_ = svc.MarkEscrowFunded(ctx, c.ID)
	_, _ = svc.Start(ctx, "usr_worker", c.ID)
	_, _ = svc.Complete(ctx, "usr_worker", c.ID)

	got, err := svc.Approve(ctx, "usr_owner", c.ID)
	if err != nil {
		t.Fatalf("Approve must not propagate release failure: %v", err)
	}
	if got.Status != StatusClosed {
		t.Errorf("expected CLOSED despite release failure, got %s", got.Status)
	}

	stored, _ := store.Get(ctx, c.ID)
	if stored.EscrowState != EscrowFunded {
		t.Errorf("expected escrow still FUNDED after failed release, got %s", stored.EscrowState)
	}
}

func TestApproveBlockedByOpenDispute(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	rel := &stubReleaser{}
	svc.WithDisputeChecker(&stubDisputes{open: true}).WithReleaser(rel)

	c := createAssigned(t, svc)
	_ = svc.MarkEscrowFunded(ctx, c.ID)
	_, _ = svc.Start(ctx, "usr_worker", c.ID)
	_, _ = svc.Complete(ctx, "usr_worker", c.ID)

	_, err := svc.Approve(ctx, "usr_owner", c.ID)
	if !errors.Is(err, ErrDisputeOpen) {
		t.Fatalf("expected ErrDisputeOpen, got %v", err)
	}
	if rel.calls != 0 {
		t.Errorf("release must not run under an open dispute, got %d calls", rel.calls)
	}
}

func TestApproveRequiresCompleted(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	c := createAssigned(t, svc)
	_ = svc.MarkEscrowFunded(ctx, c.ID)
	_, _ = svc.Start(ctx, "usr_worker", c.ID)

	if _, err := svc.Approve(ctx, "usr_owner", c.ID); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("expected ErrInvalidStatus for IN_PROGRESS chore, got %v", err)
	}
}

func TestCancelRejectsFundedChore(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	c := createAssigned(t, svc)
	_ = svc.MarkEscrowFunded(ctx, c.ID)

	if _, err := svc.Cancel(ctx, "usr_owner", c.ID); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("expected ErrInvalidStatus for funded chore, got %v", err)
	}
}

func TestCancelUnfundedChore(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	c := createAssigned(t, svc)
	got, err := svc.Cancel(ctx, "usr_owner", c.ID)
	if err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if got.Status != StatusCancelled {
		t.Errorf("expected CANCELLED, got %s", got.Status)
	}
}

func TestTerminalChoresRejectTransitions(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	c := createAssigned(t, svc)
	if _, err := svc.Cancel(ctx, "usr_owner", c.ID); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if _, err := svc.RequestCancellation(ctx, "usr_owner", c.ID); !errors.Is(err, ErrTerminal) {
		t.Errorf("expected ErrTerminal, got %v", err)
	}
}

func TestCanTransitionTable(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusPublished, StatusAssigned, true},
		{StatusAssigned, StatusFunded, true},
		{StatusFunded, StatusInProgress, true},
		{StatusInProgress, StatusCompleted, true},
		{StatusCompleted, StatusClosed, true},
		{StatusAssigned, StatusCompleted, false},
		{StatusPublished, StatusFunded, false},
		{StatusClosed, StatusPublished, false},
		{StatusCancelled, StatusAssigned, false},
		{StatusInProgress, StatusCancellationRequested, true},
		{StatusCancellationRequested, StatusCancelled, true},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestEffectivePaymentStatusPrecedence(t *testing.T) {
	cases := []struct {
		name   string
		escrow EscrowState
		manual ManualState
		want   string
	}{
		{"escrow wins over manual", EscrowFunded, ManualPaid, "FUNDED"},
		{"manual fills unpaid gap", EscrowUnpaid, ManualPaid, "CUSTOMER_PAID"},
		{"partial manual", EscrowNone, ManualPartial, "CUSTOMER_PARTIAL"},
		{"plain unpaid", EscrowUnpaid, ManualNone, "UNPAID"},
		{"nothing", EscrowNone, ManualNone, "NONE"},
		{"refunded", EscrowRefunded, ManualPaid, "REFUNDED"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := &Chore{EscrowState: tc.escrow, ManualState: tc.manual}
			if got := c.EffectivePaymentStatus(); got != tc.want {
				t.Errorf("got %s, want %s", got, tc.want)
			}
		})
	}
}

func TestMarkEscrowRefundedFromSettled(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	c := createAssigned(t, svc)
	_ = svc.MarkEscrowFunded(ctx, c.ID)
	_ = svc.MarkEscrowSettled(ctx, c.ID)

	if err := svc.MarkEscrowRefunded(ctx, c.ID); err != nil {
		t.Fatalf("MarkEscrowRefunded failed: %v", err)
	}
	got, _ := store.Get(ctx, c.ID)
	if got.EscrowState != EscrowRefunded {
		t.Errorf("expected REFUNDED, got %s", got.EscrowState)
	}

	// Stale capture after a refund must not resurrect FUNDED.
	if err := svc.MarkEscrowFunded(ctx, c.ID); err == nil {
		t.Error("expected error funding a refunded chore")
	}
}

func TestListByUserPaginates(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := svc.Create(ctx, "usr_owner", CreateRequest{Title: "chore", Budget: 1000}); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	seen := make(map[string]bool)
	cursor := ""
	pages := 0
	for {
		chores, next, err := svc.ListByUser(ctx, "usr_owner", 2, cursor)
		if err != nil {
			t.Fatalf("ListByUser failed: %v", err)
		}
		for _, c := range chores {
			if seen[c.ID] {
				t.Fatalf("chore %s returned twice", c.ID)
			}
			seen[c.ID] = true
		}
		pages++
		if next == "" {
			break
		}
		cursor = next
	}
	if len(seen) != 5 {
		t.Errorf("expected 5 chores across pages, got %d", len(seen))
	}
	if pages != 3 {
		t.Errorf("expected 3 pages of 2, got %d", pages)
	}
}

func TestListByUserRejectsBadCursor(t *testing.T) {
	svc, _ := newTestService()

	_, _, err := svc.ListByUser(context.Background(), "usr_owner", 10, "not-a-cursor")
	if !errors.Is(err, ErrInvalidCursor) {
		t.Errorf("expected ErrInvalidCursor, got %v", err)
	}
}
