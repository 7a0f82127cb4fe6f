package processor

import (
	"context"
	"testing"
)

func TestMockOrderIsDeterministic(t *testing.T) {
	g := NewMockGateway()
	ctx := context.Background()

	req := OrderRequest{
		Amount:          50000,
		Currency:        "INR",
		Receipt:         "pay_abc123",
		WorkerAccountID: "acc_worker",
		WorkerPayout:    45000,
	}
	first, err := g.CreateOrder(ctx, req)
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}
	second, err := g.CreateOrder(ctx, req)
	if err != nil {
		t.Fatalf("second CreateOrder failed: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("replayed order got a different ID: %s vs %s", first.ID, second.ID)
	}
	if first.TransferID == "" {
		t.Error("expected a transfer ID on the mock order")
	}
	if first.Amount != 50000 || first.Currency != "INR" {
		t.Errorf("order did not echo amount/currency: %+v", first)
	}
}

func TestMockOrderRejectsBadAmount(t *testing.T) {
	g := NewMockGateway()
	if _, err := g.CreateOrder(context.Background(), OrderRequest{Amount: 0, Receipt: "r"}); err == nil {
		t.Error("expected error for zero amount")
	}
}

func TestMockReleaseAndRefund(t *testing.T) {
	g := NewMockGateway()
	ctx := context.Background()

	if err := g.ReleaseTransfer(ctx, "trf_mock_x"); err != nil {
		t.Fatalf("ReleaseTransfer failed: %v", err)
	}
	if !g.Released("trf_mock_x") {
		t.Error("expected transfer to be marked released")
	}
	if err := g.ReleaseTransfer(ctx, ""); err == nil {
		t.Error("expected error for empty transfer id")
	}

	id, err := g.Refund(ctx, "pay_proc_1", 50000)
	if err != nil {
		t.Fatalf("Refund failed: %v", err)
	}
	if id == "" || g.Refunded("pay_proc_1") != id {
		t.Errorf("refund ID not recorded: %q", id)
	}
}
