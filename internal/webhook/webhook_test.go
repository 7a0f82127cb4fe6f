package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/chorebay/chorebay/internal/chore"
	"github.com/chorebay/chorebay/internal/escrow"
	"github.com/chorebay/chorebay/internal/processor"
)

const testSecret = "whsec_test"

type stubAccounts struct{}

func (stubAccounts) PayoutAccountID(ctx context.Context, userID string) (string, error) {
	return "acc_" + userID, nil
}

type harness struct {
	chores  *chore.Service
	escrow  *escrow.Service
	router  *gin.Engine
	choreID string
	orderID string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	chores := chore.NewService(chore.NewMemoryStore())
	escrowSvc := escrow.NewService(escrow.NewMemoryStore(), chores, processor.NewMockGateway(), stubAccounts{}, "INR")

	c, err := chores.Create(ctx, "usr_owner", chore.CreateRequest{Title: "Walk the dog", Budget: 30000})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := chores.Assign(ctx, "usr_owner", c.ID, "usr_worker", 30000); err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	_, order, err := escrowSvc.CreateOrder(ctx, "usr_owner", c.ID, 0)
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}

	router := gin.New()
	NewHandler(NewIngestor(escrowSvc, testSecret)).RegisterRoutes(router.Group("/v1"))

	return &harness{
		chores:  chores,
		escrow:  escrowSvc,
		router:  router,
		choreID: c.ID,
		orderID: order.ID,
	}
}

func (h *harness) deliver(t *testing.T, body []byte, signature string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/processor", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set(SignatureHeader, signature)
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func capturedBody(orderID, paymentID string) []byte {
	return []byte(fmt.Sprintf(`{
		"event": "payment.captured",
		"payload": {"payment": {"entity": {"id": %q, "order_id": %q}}}
	}`, paymentID, orderID))
}

func TestCapturedEventFundsChore(t *testing.T) {
	h := newHarness(t)
	body := capturedBody(h.orderID, "pay_proc_1")

	w := h.deliver(t, body, Sign(body, testSecret))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["result"] != "applied" {
		t.Errorf("expected applied, got %v", resp["result"])
	}

	c, _ := h.chores.Get(context.Background(), h.choreID)
	if c.Status != chore.StatusFunded || c.EscrowState != chore.EscrowFunded {
		t.Errorf("chore not funded: status=%s escrow=%s", c.Status, c.EscrowState)
	}
}

func TestRedeliveredCaptureIsDuplicate(t *testing.T) {
	h := newHarness(t)
	body := capturedBody(h.orderID, "pay_proc_1")
	sig := Sign(body, testSecret)

	h.deliver(t, body, sig)
	w := h.deliver(t, body, sig)
	if w.Code != http.StatusOK {
		t.Fatalf("redelivery must still be 200, got %d", w.Code)
	}
	var resp map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["result"] != "duplicate" {
		t.Errorf("expected duplicate, got %v", resp["result"])
	}
}

func TestBadSignatureRejected(t *testing.T) {
	h := newHarness(t)
	body := capturedBody(h.orderID, "pay_proc_1")

	if w := h.deliver(t, body, "deadbeef"); w.Code != http.StatusBadRequest {
		t.Errorf("forged signature: expected 400, got %d", w.Code)
	}
	if w := h.deliver(t, body, ""); w.Code != http.StatusBadRequest {
		t.Errorf("missing signature: expected 400, got %d", w.Code)
	}
	if w := h.deliver(t, body, Sign(body, "wrong_secret")); w.Code != http.StatusBadRequest {
		t.Errorf("wrong secret: expected 400, got %d", w.Code)
	}

	c, _ := h.chores.Get(context.Background(), h.choreID)
	if c.EscrowState != chore.EscrowPending {
		t.Errorf("rejected events must not change state, got %s", c.EscrowState)
	}
}

func TestSignatureCoversExactBytes(t *testing.T) {
	h := newHarness(t)
	body := capturedBody(h.orderID, "pay_proc_1")
	sig := Sign(body, testSecret)

	// Same JSON, different bytes: signature no longer matches.
	tampered := bytes.ReplaceAll(body, []byte("\t"), []byte(" "))
	if w := h.deliver(t, tampered, sig); w.Code != http.StatusBadRequest {
		t.Errorf("tampered body: expected 400, got %d", w.Code)
	}
}

func TestMalformedPayloadRejected(t *testing.T) {
	h := newHarness(t)

	body := []byte(`{not json`)
	if w := h.deliver(t, body, Sign(body, testSecret)); w.Code != http.StatusBadRequest {
		t.Errorf("bad JSON: expected 400, got %d", w.Code)
	}

	body = []byte(`{"payload": {}}`)
	if w := h.deliver(t, body, Sign(body, testSecret)); w.Code != http.StatusBadRequest {
		t.Errorf("missing event kind: expected 400, got %d", w.Code)
	}
}

func TestFailedEventRevertsReservation(t *testing.T) {
	h := newHarness(t)
	body := []byte(fmt.Sprintf(`{
		"event": "payment.failed",
		"payload": {"payment": {"entity": {
			"id": "pay_proc_1", "order_id": %q,
			"error_code": "BAD_REQUEST_ERROR", "error_description": "card declined"
		}}}
	}`, h.orderID))

	w := h.deliver(t, body, Sign(body, testSecret))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	c, _ := h.chores.Get(context.Background(), h.choreID)
	if c.EscrowState != chore.EscrowUnpaid {
		t.Errorf("expected UNPAID after failure, got %s", c.EscrowState)
	}
	payments, _ := h.escrow.ListPayments(context.Background(), h.choreID)
	if len(payments) != 1 || payments[0].FailureReason != "BAD_REQUEST_ERROR: card declined" {
		t.Errorf("failure reason not recorded: %+v", payments)
	}
}

func TestAuthorizedEventChangesNothing(t *testing.T) {
	h := newHarness(t)
	body := []byte(fmt.Sprintf(`{
		"event": "payment.authorized",
		"payload": {"payment": {"entity": {"id": "pay_proc_1", "order_id": %q}}}
	}`, h.orderID))

	w := h.deliver(t, body, Sign(body, testSecret))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	c, _ := h.chores.Get(context.Background(), h.choreID)
	if c.EscrowState != chore.EscrowPending {
		t.Errorf("authorization must not move escrow state, got %s", c.EscrowState)
	}
}

func TestRefundProcessedEvent(t *testing.T) {
	h := newHarness(t)
	capture := capturedBody(h.orderID, "pay_proc_1")
	h.deliver(t, capture, Sign(capture, testSecret))

	refund := []byte(`{
		"event": "refund.processed",
		"payload": {"refund": {"entity": {"id": "rfnd_1", "payment_id": "pay_proc_1"}}}
	}`)
	w := h.deliver(t, refund, Sign(refund, testSecret))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	c, _ := h.chores.Get(context.Background(), h.choreID)
	if c.EscrowState != chore.EscrowRefunded {
		t.Errorf("expected REFUNDED, got %s", c.EscrowState)
	}
}

func TestUnknownOrderAcknowledged(t *testing.T) {
	h := newHarness(t)
	body := capturedBody("order_unknown", "pay_proc_x")

	w := h.deliver(t, body, Sign(body, testSecret))
	if w.Code != http.StatusOK {
		t.Fatalf("unknown order must be acknowledged, got %d", w.Code)
	}
	var resp map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["result"] != "ignored" {
		t.Errorf("expected ignored, got %v", resp["result"])
	}
}

func TestCapturedEventCarriesTransfer(t *testing.T) {
	body := []byte(`{
		"event": "payment.captured",
		"payload": {"payment": {"entity": {
			"id": "pay_proc_1", "order_id": "order_1",
			"transfers": {"items": [{"id": "trf_evt_1"}, {"id": "trf_evt_2"}]}
		}}}
	}`)
	event, err := ParseEvent(body)
	if err != nil {
		t.Fatalf("ParseEvent failed: %v", err)
	}
	if got := event.TransferID(); got != "trf_evt_1" {
		t.Errorf("expected first transfer, got %q", got)
	}

	bare, err := ParseEvent(capturedBody("order_1", "pay_proc_1"))
	if err != nil {
		t.Fatalf("ParseEvent failed: %v", err)
	}
	if got := bare.TransferID(); got != "" {
		t.Errorf("expected no transfer on a bare capture, got %q", got)
	}
}

func TestUnknownEventKindAcknowledged(t *testing.T) {
	h := newHarness(t)
	body := []byte(`{"event": "order.paid", "payload": {}}`)

	w := h.deliver(t, body, Sign(body, testSecret))
	if w.Code != http.StatusOK {
		t.Fatalf("unknown kind must be acknowledged, got %d", w.Code)
	}
}
