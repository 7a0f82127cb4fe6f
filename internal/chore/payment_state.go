package chore

import (
	"context"
	"fmt"
	"time"
)

// Payment-state mutators consumed by the escrow components, the webhook
// ingestor, the dispute resolver, and the manual ledger. All are written
// as idempotent "set if not already in target state" operations because
// processor webhooks may be redelivered or arrive out of order.

// ReserveEscrow moves the chore's escrow state UNPAID -> PENDING before
// any processor call is made, closing the race window between two
// concurrent order-creation requests.
func (s *Service) ReserveEscrow(ctx context.Context, choreID string) error {
	unlock := s.locks.Lock(choreID)
	defer unlock()

	return s.store.ReserveEscrow(ctx, choreID)
}

// RevertEscrowReservation clears a PENDING reservation back to UNPAID so
// the customer can retry order creation. No-op unless currently PENDING.
func (s *Service) RevertEscrowReservation(ctx context.Context, choreID string) error {
	return s.setEscrowState(ctx, choreID, []EscrowState{EscrowPending}, EscrowUnpaid, nil)
}

// MarkEscrowFunded records a captured payment: escrow state -> FUNDED and,
// if the chore is still ASSIGNED, status -> FUNDED (the signal that the
// worker may begin). Idempotent: already-FUNDED chores are left untouched.
func (s *Service) MarkEscrowFunded(ctx context.Context, choreID string) error {
	unlock := s.locks.Lock(choreID)
	defer unlock()

	c, err := s.store.Get(ctx, choreID)
	if err != nil {
		return err
	}
	if c.EscrowState == EscrowFunded {
		return nil
	}
	switch c.EscrowState {
	case EscrowPending, EscrowUnpaid:
		// UNPAID is legal here: a capture can land after the sweep
		// already expired the reservation.
	default:
		return fmt.Errorf("cannot fund chore in escrow state %s", c.EscrowState)
	}

	c.EscrowState = EscrowFunded
	if c.Status == StatusAssigned {
		if err := c.transition(StatusFunded); err != nil {
			return err
		}
	}
	c.UpdatedAt = time.Now()
	return s.store.Update(ctx, c)
}

// MarkEscrowSettled records a released payout: escrow state -> SETTLED.
func (s *Service) MarkEscrowSettled(ctx context.Context, choreID string) error {
	return s.setEscrowState(ctx, choreID, []EscrowState{EscrowFunded}, EscrowSettled, nil)
}

// MarkEscrowRefunded records a processed refund: escrow state -> REFUNDED.
func (s *Service) MarkEscrowRefunded(ctx context.Context, choreID string) error {
	return s.setEscrowState(ctx, choreID, []EscrowState{EscrowPending, EscrowFunded, EscrowSettled}, EscrowRefunded, nil)
}

// setEscrowState applies an idempotent guarded escrow-state move. A chore
// already in the target state is a silent no-op; a chore in a state not
// listed in from is also a no-op (stale or reordered event), never an error.
func (s *Service) setEscrowState(ctx context.Context, choreID string, from []EscrowState, to EscrowState, mutate func(*Chore)) error {
	unlock := s.locks.Lock(choreID)
	defer unlock()

	c, err := s.store.Get(ctx, choreID)
	if err != nil {
		return err
	}
	if c.EscrowState == to {
		return nil
	}
	allowed := false
	for _, f := range from {
		if c.EscrowState == f {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil
	}

	c.EscrowState = to
	if mutate != nil {
		mutate(c)
	}
	c.UpdatedAt = time.Now()
	return s.store.Update(ctx, c)
}

// SetManualState records the manual ledger's recomputed payment state.
// The escrow state is never touched here.
func (s *Service) SetManualState(ctx context.Context, choreID string, state ManualState) error {
	unlock := s.locks.Lock(choreID)
	defer unlock()

	c, err := s.store.Get(ctx, choreID)
	if err != nil {
		return err
	}
	if c.ManualState == state {
		return nil
	}
	c.ManualState = state
	c.UpdatedAt = time.Now()
	return s.store.Update(ctx, c)
}
