package checkout

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/branlog/split-payment/apperr"
	"github.com/branlog/split-payment/config"
	"github.com/branlog/split-payment/model"
	"github.com/branlog/split-payment/shopify"
	"github.com/branlog/split-payment/stripe"
)

// PaymentAPI is the slice of the processor client the service calls.
type PaymentAPI interface {
	CreateIntent(ctx context.Context, amountCents int64, currency string, metadata map[string]string) (*stripe.Intent, error)
	GetIntent(ctx context.Context, id string) (*stripe.Intent, error)
}

// CommerceAPI is the slice of the platform client the service calls.
type CommerceAPI interface {
	CreateOrder(ctx context.Context, req shopify.OrderRequest) (*shopify.Order, error)
	UpdateOrder(ctx context.Context, id int64, upd shopify.OrderUpdate) error
}

// CheckoutStore persists the checkout log. FindByIntent returns (nil, nil)
// when no row matches.
type CheckoutStore interface {
	Create(ctx context.Context, ck *model.Checkout) error
	FindByIntent(ctx context.Context, intentID string) (*model.Checkout, error)
	UpdateStatusByIntent(ctx context.Context, intentID, status string) error
	SetOrders(ctx context.Context, ref, status string, paidOrderID, codOrderID int64) error
}

// EventPublisher emits domain events; implementations log and swallow their
// own transport failures.
type EventPublisher interface {
	Publish(topic string, event interface{})
}

type CreateRequest struct {
	Customer        model.Customer   `json:"customer"`
	ShippingAddress *model.Address   `json:"shipping_address"`
	Items           []model.CartItem `json:"items"`
}

type Amounts struct {
	CardCents int64 `json:"card_cents"`
	CODCents  int64 `json:"cod_cents"`
}

type CreateResponse struct {
	OK              bool    `json:"ok"`
	CheckoutRef     string  `json:"checkout_ref"`
	PaymentIntentID string  `json:"payment_intent_id,omitempty"`
	ClientSecret    string  `json:"client_secret,omitempty"`
	Amounts         Amounts `json:"amounts"`
}

type ConfirmRequest struct {
	PaymentIntentID string           `json:"stripe_payment_intent_id"`
	Customer        model.Customer   `json:"customer"`
	ShippingAddress *model.Address   `json:"shipping_address"`
	Items           []model.CartItem `json:"items"`
}

type CreatedOrders struct {
	PaidOrder *shopify.Order `json:"paid_order,omitempty"`
	CODOrder  *shopify.Order `json:"cod_order,omitempty"`
}

type ConfirmResponse struct {
	OK      bool          `json:"ok"`
	Created CreatedOrders `json:"created"`
}

type Service struct {
	cfg      *config.Config
	payments PaymentAPI
	commerce CommerceAPI
	store    CheckoutStore
	events   EventPublisher
}

func NewService(cfg *config.Config, payments PaymentAPI, commerce CommerceAPI, store CheckoutStore, events EventPublisher) *Service {
	return &Service{cfg: cfg, payments: payments, commerce: commerce, store: store, events: events}
}

// Create splits the cart and, when the card branch is non-empty, opens a
// payment authorization for its total. The COD total rides along as intent
// metadata for later reconciliation. No order is created here.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*CreateResponse, error) {
	sp, err := SplitItems(req.Items)
	if err != nil {
		return nil, err
	}

	ref := "chk_" + uuid.NewString()
	resp := &CreateResponse{
		OK:          true,
		CheckoutRef: ref,
		Amounts:     Amounts{CardCents: sp.CardCents, CODCents: sp.CODCents},
	}

	status := model.StatusInitiated
	if sp.CardCents > 0 {
		md := map[string]string{
			"checkout_ref": ref,
			"cod_cents":    strconv.FormatInt(sp.CODCents, 10),
		}
		if req.Customer.Email != "" {
			md["email"] = req.Customer.Email
		}
		intent, err := s.payments.CreateIntent(ctx, sp.CardCents, s.cfg.Currency, md)
		if err != nil {
			return nil, apperr.Upstream(apperr.CodeUpstreamPayment, fiber.StatusBadGateway,
				"payment authorization could not be created", err.Error())
		}
		resp.PaymentIntentID = intent.ID
		resp.ClientSecret = intent.ClientSecret
		status = model.StatusAuthPending
	}

	if err := s.store.Create(ctx, &model.Checkout{
		Ref:             ref,
		PaymentIntentID: resp.PaymentIntentID,
		Email:           req.Customer.Email,
		CardCents:       sp.CardCents,
		CODCents:        sp.CODCents,
		Status:          status,
	}); err != nil {
		log.Printf("checkout %s: record create failed: %v", ref, err)
	}
	return resp, nil
}

// Confirm re-fetches the authorization and, only when it has succeeded,
// creates one platform order per non-empty branch: the card branch marked
// paid, the delivery branch marked pending. Branch calls are sequential and
// a failure after the first order stands without rollback.
func (s *Service) Confirm(ctx context.Context, req ConfirmRequest) (*ConfirmResponse, error) {
	if strings.TrimSpace(req.PaymentIntentID) == "" {
		return nil, apperr.New(apperr.CodeMissingIntent, fiber.StatusBadRequest, "stripe_payment_intent_id is required")
	}
	sp, err := SplitItems(req.Items)
	if err != nil {
		return nil, err
	}

	intent, err := s.payments.GetIntent(ctx, req.PaymentIntentID)
	if err != nil {
		return nil, apperr.Upstream(apperr.CodeUpstreamPayment, fiber.StatusPaymentRequired,
			"payment authorization could not be retrieved", err.Error())
	}
	if intent.Status != "succeeded" {
		return nil, apperr.Upstream(apperr.CodeNotReady, fiber.StatusPaymentRequired,
			"payment has not completed", intent.Status)
	}

	created := CreatedOrders{}
	if len(sp.Card) > 0 {
		order, err := s.commerce.CreateOrder(ctx, s.orderRequest(req.Customer, req.ShippingAddress, sp.Card, "paid",
			"split-payment", "card branch, intent "+intent.ID))
		if err != nil {
			return nil, apperr.Upstream(apperr.CodeUpstreamCommerce, fiber.StatusBadGateway,
				"paid order creation failed", err.Error())
		}
		created.PaidOrder = order
	}
	if len(sp.COD) > 0 {
		order, err := s.commerce.CreateOrder(ctx, s.orderRequest(req.Customer, req.ShippingAddress, sp.COD, "pending",
			"split-payment,COD", "cash on delivery branch, intent "+intent.ID))
		if err != nil {
			return nil, apperr.Upstream(apperr.CodeUpstreamCommerce, fiber.StatusBadGateway,
				"cod order creation failed", err.Error())
		}
		created.CODOrder = order
	}

	var paidID, codID int64
	if created.PaidOrder != nil {
		paidID = created.PaidOrder.ID
	}
	if created.CODOrder != nil {
		codID = created.CODOrder.ID
	}
	ref := intent.Metadata["checkout_ref"]
	if ref != "" {
		if err := s.store.SetOrders(ctx, ref, model.StatusOrderCreated, paidID, codID); err != nil {
			log.Printf("checkout %s: record orders failed: %v", ref, err)
		}
	}
	s.events.Publish("checkout.completed", fiber.Map{
		"checkout_ref":      ref,
		"payment_intent_id": intent.ID,
		"paid_order_id":     paidID,
		"cod_order_id":      codID,
	})

	return &ConfirmResponse{OK: true, Created: created}, nil
}

// CreateCOD creates a single pending order for the whole cart, bypassing the
// payment processor entirely.
func (s *Service) CreateCOD(ctx context.Context, req CreateRequest) (*ConfirmResponse, error) {
	sp, err := SplitItems(req.Items)
	if err != nil {
		return nil, err
	}

	items := append(append([]model.CartItem{}, sp.Card...), sp.COD...)
	order, err := s.commerce.CreateOrder(ctx, s.orderRequest(req.Customer, req.ShippingAddress, items, "pending",
		"split-payment,COD", "cash on delivery"))
	if err != nil {
		return nil, apperr.Upstream(apperr.CodeUpstreamCommerce, fiber.StatusBadGateway,
			"cod order creation failed", err.Error())
	}

	ref := "chk_" + uuid.NewString()
	if err := s.store.Create(ctx, &model.Checkout{
		Ref:        ref,
		Email:      req.Customer.Email,
		CODCents:   sp.CardCents + sp.CODCents,
		Status:     model.StatusOrderCreated,
		CODOrderID: order.ID,
	}); err != nil {
		log.Printf("checkout %s: record cod failed: %v", ref, err)
	}
	s.events.Publish("checkout.completed", fiber.Map{
		"checkout_ref": ref,
		"cod_order_id": order.ID,
	})

	return &ConfirmResponse{OK: true, Created: CreatedOrders{CODOrder: order}}, nil
}

// HandleEvent reacts to processor status notifications. The caller has
// already verified the signature. Side effects are best effort; errors are
// returned for the route layer to log, never swallowed here.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	var status string
	switch event.Type {
	case "payment_intent.succeeded":
		status = model.StatusAuthSucceeded
	case "payment_intent.payment_failed":
		status = model.StatusAuthFailed
	default:
		return nil
	}

	intent, err := event.Intent()
	if err != nil {
		return err
	}
	if err := s.store.UpdateStatusByIntent(ctx, intent.ID, status); err != nil {
		return fmt.Errorf("update checkout for intent %s: %w", intent.ID, err)
	}

	orderID, err := s.eventOrderID(ctx, intent)
	if err != nil {
		return err
	}
	if orderID != 0 {
		upd := shopify.OrderUpdate{Note: "payment " + intent.Status, Tags: "split-payment"}
		if err := s.commerce.UpdateOrder(ctx, orderID, upd); err != nil {
			return fmt.Errorf("update order %d for intent %s: %w", orderID, intent.ID, err)
		}
	}

	if status == model.StatusAuthFailed {
		s.events.Publish("payment.failed", fiber.Map{"payment_intent_id": intent.ID})
	}
	return nil
}

// eventOrderID resolves the order to annotate: the intent metadata first,
// then the stored checkout row.
func (s *Service) eventOrderID(ctx context.Context, intent *stripe.Intent) (int64, error) {
	if v := intent.Metadata["order_id"]; v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("intent %s: bad order_id metadata %q", intent.ID, v)
		}
		return id, nil
	}
	row, err := s.store.FindByIntent(ctx, intent.ID)
	if err != nil || row == nil {
		return 0, err
	}
	return row.PaidOrderID, nil
}

func (s *Service) orderRequest(cust model.Customer, addr *model.Address, items []model.CartItem, financialStatus, tags, note string) shopify.OrderRequest {
	lines := make([]shopify.LineItem, 0, len(items))
	for _, it := range items {
		if it.VariantID > 0 {
			lines = append(lines, shopify.LineItem{VariantID: it.VariantID, Quantity: it.Qty})
			continue
		}
		title := it.Title
		if title == "" {
			title = "Custom item"
		}
		lines = append(lines, shopify.LineItem{
			Title:    title,
			Quantity: it.Qty,
			Price:    centsToPrice(itemUnitCents(it)),
		})
	}

	req := shopify.OrderRequest{
		Email:           cust.Email,
		LineItems:       lines,
		FinancialStatus: financialStatus,
		Tags:            tags,
		Note:            note,
	}
	if addr != nil {
		req.ShippingAddress = &shopify.Address{
			Address1: addr.Address1,
			Address2: addr.Address2,
			City:     addr.City,
			Province: addr.Province,
			Country:  addr.Country,
			Zip:      addr.Zip,
			Phone:    addr.Phone,
		}
	}
	return req
}

func centsToPrice(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}
