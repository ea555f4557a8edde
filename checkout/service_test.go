package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/branlog/split-payment/apperr"
	"github.com/branlog/split-payment/config"
	"github.com/branlog/split-payment/model"
	"github.com/branlog/split-payment/shopify"
	"github.com/branlog/split-payment/stripe"
)

type stubPayments struct {
	createCalls  int
	getCalls     int
	intent       *stripe.Intent
	createErr    error
	getErr       error
	lastAmount   int64
	lastCurrency string
	lastMetadata map[string]string
}

func (s *stubPayments) CreateIntent(_ context.Context, amountCents int64, currency string, metadata map[string]string) (*stripe.Intent, error) {
	s.createCalls++
	s.lastAmount = amountCents
	s.lastCurrency = currency
	s.lastMetadata = metadata
	if s.createErr != nil {
		return nil, s.createErr
	}
	return &stripe.Intent{
		ID:           "pi_test_1",
		ClientSecret: "pi_test_1_secret",
		Status:       "requires_payment_method",
		Amount:       amountCents,
		Metadata:     metadata,
	}, nil
}

func (s *stubPayments) GetIntent(_ context.Context, id string) (*stripe.Intent, error) {
	s.getCalls++
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.intent, nil
}

type stubCommerce struct {
	createCalls int
	updateCalls int
	failOnCall  int // 1-based; 0 means never fail
	updateErr   error
	requests    []shopify.OrderRequest
	updatedIDs  []int64
	updates     []shopify.OrderUpdate
}

func (s *stubCommerce) CreateOrder(_ context.Context, req shopify.OrderRequest) (*shopify.Order, error) {
	s.createCalls++
	if s.failOnCall == s.createCalls {
		return nil, errors.New("422 order rejected")
	}
	s.requests = append(s.requests, req)
	return &shopify.Order{
		ID:              int64(1000 + s.createCalls),
		Name:            fmt.Sprintf("#%d", 1000+s.createCalls),
		FinancialStatus: req.FinancialStatus,
	}, nil
}

func (s *stubCommerce) UpdateOrder(_ context.Context, id int64, upd shopify.OrderUpdate) error {
	s.updateCalls++
	s.updatedIDs = append(s.updatedIDs, id)
	s.updates = append(s.updates, upd)
	return s.updateErr
}

type memStore struct {
	rows []*model.Checkout
}

func (m *memStore) Create(_ context.Context, ck *model.Checkout) error {
	m.rows = append(m.rows, ck)
	return nil
}

func (m *memStore) FindByIntent(_ context.Context, intentID string) (*model.Checkout, error) {
	for _, r := range m.rows {
		if r.PaymentIntentID == intentID {
			return r, nil
		}
	}
	return nil, nil
}

func (m *memStore) UpdateStatusByIntent(_ context.Context, intentID, status string) error {
	for _, r := range m.rows {
		if r.PaymentIntentID == intentID {
			r.Status = status
		}
	}
	return nil
}

func (m *memStore) SetOrders(_ context.Context, ref, status string, paidOrderID, codOrderID int64) error {
	for _, r := range m.rows {
		if r.Ref == ref {
			r.Status = status
			r.PaidOrderID = paidOrderID
			r.CODOrderID = codOrderID
		}
	}
	return nil
}

type stubEvents struct {
	topics []string
}

func (s *stubEvents) Publish(topic string, _ interface{}) {
	s.topics = append(s.topics, topic)
}

func newTestService() (*Service, *stubPayments, *stubCommerce, *memStore, *stubEvents) {
	payments := &stubPayments{}
	commerce := &stubCommerce{}
	st := &memStore{}
	events := &stubEvents{}
	cfg := &config.Config{Currency: "cad"}
	return NewService(cfg, payments, commerce, st, events), payments, commerce, st, events
}

func splitCart() []model.CartItem {
	return []model.CartItem{
		{VariantID: 1, Qty: 1, PriceCents: fp(1000), PayMethod: model.PayMethodCard},
		{VariantID: 2, Qty: 2, PriceCents: fp(500), PayMethod: model.PayMethodCOD},
	}
}

func TestCreateSplitsAmountsAndOpensIntent(t *testing.T) {
	svc, payments, _, st, _ := newTestService()

	resp, err := svc.Create(context.Background(), CreateRequest{
		Customer: model.Customer{Email: "buyer@example.com"},
		Items:    splitCart(),
	})
	require.NoError(t, err)

	assert.Equal(t, int64(1000), resp.Amounts.CardCents)
	assert.Equal(t, int64(1000), resp.Amounts.CODCents)
	assert.Equal(t, "pi_test_1", resp.PaymentIntentID)
	assert.NotEmpty(t, resp.ClientSecret)

	assert.Equal(t, 1, payments.createCalls)
	assert.Equal(t, int64(1000), payments.lastAmount)
	assert.Equal(t, "cad", payments.lastCurrency)
	assert.Equal(t, "1000", payments.lastMetadata["cod_cents"])
	assert.Equal(t, "buyer@example.com", payments.lastMetadata["email"])
	assert.Equal(t, resp.CheckoutRef, payments.lastMetadata["checkout_ref"])

	require.Len(t, st.rows, 1)
	assert.Equal(t, model.StatusAuthPending, st.rows[0].Status)
	assert.Equal(t, "pi_test_1", st.rows[0].PaymentIntentID)
}

func TestCreateZeroCardSkipsProcessor(t *testing.T) {
	svc, payments, _, st, _ := newTestService()

	resp, err := svc.Create(context.Background(), CreateRequest{
		Items: []model.CartItem{
			{VariantID: 2, Qty: 2, PriceCents: fp(500), PayMethod: model.PayMethodCOD},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 0, payments.createCalls)
	assert.Empty(t, resp.PaymentIntentID)
	assert.Empty(t, resp.ClientSecret)
	assert.Equal(t, int64(0), resp.Amounts.CardCents)
	assert.Equal(t, int64(1000), resp.Amounts.CODCents)

	require.Len(t, st.rows, 1)
	assert.Equal(t, model.StatusInitiated, st.rows[0].Status)
}

func TestCreateProcessorFailure(t *testing.T) {
	svc, payments, _, _, _ := newTestService()
	payments.createErr = errors.New("card network down")

	_, err := svc.Create(context.Background(), CreateRequest{Items: splitCart()})
	require.Error(t, err)
	e := apperr.From(err)
	assert.Equal(t, apperr.CodeUpstreamPayment, e.Code)
	assert.Equal(t, 502, e.Status)
}

func TestConfirmMissingIntent(t *testing.T) {
	svc, payments, commerce, _, _ := newTestService()

	_, err := svc.Confirm(context.Background(), ConfirmRequest{Items: splitCart()})
	require.Error(t, err)
	assert.Equal(t, apperr.CodeMissingIntent, apperr.From(err).Code)
	assert.Equal(t, 0, payments.getCalls)
	assert.Equal(t, 0, commerce.createCalls)
}

func TestConfirmRejectsUnfinishedAuthorization(t *testing.T) {
	svc, payments, commerce, _, _ := newTestService()
	payments.intent = &stripe.Intent{ID: "pi_test_1", Status: "requires_payment_method"}

	_, err := svc.Confirm(context.Background(), ConfirmRequest{
		PaymentIntentID: "pi_test_1",
		Items:           splitCart(),
	})
	require.Error(t, err)
	e := apperr.From(err)
	assert.Equal(t, apperr.CodeNotReady, e.Code)
	assert.Equal(t, 402, e.Status)
	assert.Equal(t, "requires_payment_method", e.Detail)
	assert.Equal(t, 0, commerce.createCalls, "no order call may happen before authorization succeeds")
}

func TestConfirmRetrievalFailure(t *testing.T) {
	svc, payments, commerce, _, _ := newTestService()
	payments.getErr = errors.New("connection reset")

	_, err := svc.Confirm(context.Background(), ConfirmRequest{
		PaymentIntentID: "pi_test_1",
		Items:           splitCart(),
	})
	require.Error(t, err)
	assert.Equal(t, apperr.CodeUpstreamPayment, apperr.From(err).Code)
	assert.Equal(t, 0, commerce.createCalls)
}

func TestConfirmCreatesOneOrderPerBranch(t *testing.T) {
	svc, payments, commerce, st, events := newTestService()
	st.rows = append(st.rows, &model.Checkout{Ref: "chk_abc", PaymentIntentID: "pi_test_1", Status: model.StatusAuthPending})
	payments.intent = &stripe.Intent{
		ID:       "pi_test_1",
		Status:   "succeeded",
		Metadata: map[string]string{"checkout_ref": "chk_abc"},
	}

	resp, err := svc.Confirm(context.Background(), ConfirmRequest{
		PaymentIntentID: "pi_test_1",
		Customer:        model.Customer{Email: "buyer@example.com"},
		Items:           splitCart(),
	})
	require.NoError(t, err)

	require.Equal(t, 2, commerce.createCalls)
	paid := commerce.requests[0]
	assert.Equal(t, "paid", paid.FinancialStatus)
	require.Len(t, paid.LineItems, 1)
	assert.Equal(t, int64(1), paid.LineItems[0].VariantID)
	assert.Equal(t, 1, paid.LineItems[0].Quantity)

	cod := commerce.requests[1]
	assert.Equal(t, "pending", cod.FinancialStatus)
	require.Len(t, cod.LineItems, 1)
	assert.Equal(t, int64(2), cod.LineItems[0].VariantID)
	assert.Equal(t, 2, cod.LineItems[0].Quantity)

	require.NotNil(t, resp.Created.PaidOrder)
	require.NotNil(t, resp.Created.CODOrder)
	assert.Equal(t, model.StatusOrderCreated, st.rows[0].Status)
	assert.Equal(t, resp.Created.PaidOrder.ID, st.rows[0].PaidOrderID)
	assert.Equal(t, resp.Created.CODOrder.ID, st.rows[0].CODOrderID)
	assert.Contains(t, events.topics, "checkout.completed")
}

func TestConfirmEmptyBranchIsOmitted(t *testing.T) {
	svc, payments, commerce, _, _ := newTestService()
	payments.intent = &stripe.Intent{ID: "pi_test_1", Status: "succeeded"}

	resp, err := svc.Confirm(context.Background(), ConfirmRequest{
		PaymentIntentID: "pi_test_1",
		Items: []model.CartItem{
			{VariantID: 1, Qty: 1, PriceCents: fp(1000), PayMethod: model.PayMethodCard},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, commerce.createCalls)
	assert.Equal(t, "paid", commerce.requests[0].FinancialStatus)
	assert.NotNil(t, resp.Created.PaidOrder)
	assert.Nil(t, resp.Created.CODOrder)
}

func TestConfirmClientPricedFallbackLine(t *testing.T) {
	svc, payments, commerce, _, _ := newTestService()
	payments.intent = &stripe.Intent{ID: "pi_test_1", Status: "succeeded"}

	_, err := svc.Confirm(context.Background(), ConfirmRequest{
		PaymentIntentID: "pi_test_1",
		Items: []model.CartItem{
			{Qty: 2, Title: "Gift wrap", UnitPriceCents: fp(250), PayMethod: model.PayMethodCard},
		},
	})
	require.NoError(t, err)

	require.Len(t, commerce.requests[0].LineItems, 1)
	line := commerce.requests[0].LineItems[0]
	assert.Zero(t, line.VariantID)
	assert.Equal(t, "Gift wrap", line.Title)
	assert.Equal(t, "2.50", line.Price)
	assert.Equal(t, 2, line.Quantity)
}

// A second-branch failure leaves the first branch's order standing; there is
// no rollback, only the surfaced error.
func TestConfirmPartialFailure(t *testing.T) {
	svc, payments, commerce, _, _ := newTestService()
	payments.intent = &stripe.Intent{ID: "pi_test_1", Status: "succeeded"}
	commerce.failOnCall = 2

	_, err := svc.Confirm(context.Background(), ConfirmRequest{
		PaymentIntentID: "pi_test_1",
		Items:           splitCart(),
	})
	require.Error(t, err)
	e := apperr.From(err)
	assert.Equal(t, apperr.CodeUpstreamCommerce, e.Code)
	assert.Contains(t, e.Detail, "422")

	assert.Equal(t, 2, commerce.createCalls)
	require.Len(t, commerce.requests, 1)
	assert.Equal(t, "paid", commerce.requests[0].FinancialStatus)
}

func TestCreateCODBypassesProcessor(t *testing.T) {
	svc, payments, commerce, st, _ := newTestService()

	resp, err := svc.CreateCOD(context.Background(), CreateRequest{
		Customer: model.Customer{Email: "buyer@example.com"},
		Items:    splitCart(),
	})
	require.NoError(t, err)

	assert.Equal(t, 0, payments.createCalls)
	assert.Equal(t, 0, payments.getCalls)
	require.Equal(t, 1, commerce.createCalls)
	assert.Equal(t, "pending", commerce.requests[0].FinancialStatus)
	assert.Len(t, commerce.requests[0].LineItems, 2)
	require.NotNil(t, resp.Created.CODOrder)

	require.Len(t, st.rows, 1)
	assert.Equal(t, model.StatusOrderCreated, st.rows[0].Status)
	assert.Equal(t, int64(2000), st.rows[0].CODCents)
}

func intentEvent(t *testing.T, eventType string, intent stripe.Intent) *stripe.Event {
	t.Helper()
	raw, err := json.Marshal(intent)
	require.NoError(t, err)
	e := &stripe.Event{ID: "evt_1", Type: eventType}
	e.Data.Object = raw
	return e
}

func TestHandleEventFailedPayment(t *testing.T) {
	svc, _, commerce, st, events := newTestService()
	st.rows = append(st.rows, &model.Checkout{Ref: "chk_abc", PaymentIntentID: "pi_test_1", Status: model.StatusAuthPending})

	err := svc.HandleEvent(context.Background(), intentEvent(t, "payment_intent.payment_failed",
		stripe.Intent{ID: "pi_test_1", Status: "requires_payment_method"}))
	require.NoError(t, err)

	assert.Equal(t, model.StatusAuthFailed, st.rows[0].Status)
	assert.Equal(t, 0, commerce.updateCalls)
	assert.Contains(t, events.topics, "payment.failed")
}

func TestHandleEventUpdatesOrderFromMetadata(t *testing.T) {
	svc, _, commerce, st, _ := newTestService()
	st.rows = append(st.rows, &model.Checkout{Ref: "chk_abc", PaymentIntentID: "pi_test_1"})

	err := svc.HandleEvent(context.Background(), intentEvent(t, "payment_intent.succeeded",
		stripe.Intent{ID: "pi_test_1", Status: "succeeded", Metadata: map[string]string{"order_id": "777"}}))
	require.NoError(t, err)

	assert.Equal(t, model.StatusAuthSucceeded, st.rows[0].Status)
	require.Equal(t, 1, commerce.updateCalls)
	assert.Equal(t, int64(777), commerce.updatedIDs[0])
}

func TestHandleEventFallsBackToStoredOrder(t *testing.T) {
	svc, _, commerce, st, _ := newTestService()
	st.rows = append(st.rows, &model.Checkout{Ref: "chk_abc", PaymentIntentID: "pi_test_1", PaidOrderID: 555})

	err := svc.HandleEvent(context.Background(), intentEvent(t, "payment_intent.succeeded",
		stripe.Intent{ID: "pi_test_1", Status: "succeeded"}))
	require.NoError(t, err)

	require.Equal(t, 1, commerce.updateCalls)
	assert.Equal(t, int64(555), commerce.updatedIDs[0])
}

func TestHandleEventSurfacesUpdateFailure(t *testing.T) {
	svc, _, commerce, st, _ := newTestService()
	st.rows = append(st.rows, &model.Checkout{Ref: "chk_abc", PaymentIntentID: "pi_test_1", PaidOrderID: 555})
	commerce.updateErr = errors.New("503 from platform")

	err := svc.HandleEvent(context.Background(), intentEvent(t, "payment_intent.succeeded",
		stripe.Intent{ID: "pi_test_1", Status: "succeeded"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestHandleEventIgnoresOtherTypes(t *testing.T) {
	svc, _, commerce, st, events := newTestService()
	st.rows = append(st.rows, &model.Checkout{Ref: "chk_abc", PaymentIntentID: "pi_test_1", Status: model.StatusAuthPending})

	err := svc.HandleEvent(context.Background(), intentEvent(t, "charge.refunded",
		stripe.Intent{ID: "pi_test_1"}))
	require.NoError(t, err)

	assert.Equal(t, model.StatusAuthPending, st.rows[0].Status)
	assert.Equal(t, 0, commerce.updateCalls)
	assert.Empty(t, events.topics)
}
