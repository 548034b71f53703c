package checkout

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/giftbasket/giftcart/internal/cart"
	"github.com/giftbasket/giftcart/internal/delivery"
	"github.com/giftbasket/giftcart/pkg/backend"
	"github.com/giftbasket/giftcart/pkg/enums"
	pkgerrors "github.com/giftbasket/giftcart/pkg/errors"
	"github.com/giftbasket/giftcart/pkg/logger"
)

type orderSubmitter interface {
	SubmitOrder(ctx context.Context, req backend.SubmitOrderRequest) (*backend.Order, error)
}

// DraftTracker exposes the session's pending draft order.
type DraftTracker interface {
	PendingID(ctx context.Context) string
	ClearPending(ctx context.Context) error
}

type slotPlanner interface {
	ParseDate(value string) (time.Time, error)
	DeliveryDateBounds(req delivery.Requirement) delivery.Bounds
	SlotOffered(date time.Time, value string, req delivery.Requirement) bool
}

// Request carries the checkout form.
type Request struct {
	DeliveryAddress string `json:"delivery_address"`
	DeliveryCity    string `json:"delivery_city"`
	DeliveryState   string `json:"delivery_state"`
	DeliveryDate    string `json:"delivery_date"`
	DeliveryTime    string `json:"delivery_time"`
	PaymentMethod   string `json:"payment_method"`
	RecipientPhone  string `json:"recipient_phone"`
}

type FinalizerParams struct {
	Orders   orderSubmitter
	Delivery slotPlanner
	Logger   *logger.Logger
}

// Finalizer turns a cart into a submitted order.
type Finalizer struct {
	orders   orderSubmitter
	delivery slotPlanner
	logg     *logger.Logger
}

func NewFinalizer(params FinalizerParams) (*Finalizer, error) {
	if params.Orders == nil {
		return nil, fmt.Errorf("order submitter required")
	}
	if params.Delivery == nil {
		return nil, fmt.Errorf("delivery engine required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Finalizer{orders: params.Orders, delivery: params.Delivery, logg: logg}, nil
}

// CreateOrder validates the checkout form against state and submits the order.
// The pending draft is cleared on success; the cart itself is left alone.
func (f *Finalizer) CreateOrder(ctx context.Context, userID string, state cart.CartState, drafts DraftTracker, req Request) (*backend.Order, error) {
	submit, err := f.buildRequest(userID, state, req)
	if err != nil {
		return nil, err
	}
	if drafts != nil {
		submit.DraftOrderID = drafts.PendingID(ctx)
	}

	order, err := f.orders.SubmitOrder(ctx, submit)
	if err != nil {
		return nil, err
	}

	logCtx := f.logg.WithFields(ctx, map[string]any{
		"order_id":       order.ID,
		"draft_order_id": submit.DraftOrderID,
		"item_count":     state.ItemCount,
	})
	if drafts != nil {
		if err := drafts.ClearPending(ctx); err != nil {
			f.logg.Error(logCtx, "clear pending draft after order submission", err)
		}
	}
	f.logg.Info(logCtx, "order submitted")
	return order, nil
}

func (f *Finalizer) buildRequest(userID string, state cart.CartState, req Request) (backend.SubmitOrderRequest, error) {
	if state.IsEmpty() {
		return backend.SubmitOrderRequest{}, invalid("items", "cart is empty")
	}

	dateValue := strings.TrimSpace(req.DeliveryDate)
	if dateValue == "" {
		return backend.SubmitOrderRequest{}, invalid("delivery_date", "delivery date is required")
	}
	date, err := f.delivery.ParseDate(dateValue)
	if err != nil {
		return backend.SubmitOrderRequest{}, invalid("delivery_date", "delivery date must be YYYY-MM-DD")
	}
	bounds := f.delivery.DeliveryDateBounds(state)
	if date.Before(bounds.MinDate) || date.After(bounds.MaxDate) {
		return backend.SubmitOrderRequest{}, invalid("delivery_date", "delivery date is outside the bookable range")
	}

	city, uf := strings.TrimSpace(req.DeliveryCity), strings.ToUpper(strings.TrimSpace(req.DeliveryState))
	if city == "" || uf == "" {
		parsedCity, parsedState, ok := LegacyParseCityState(req.DeliveryAddress)
		if !ok {
			field := "delivery_city"
			if city != "" {
				field = "delivery_state"
			}
			return backend.SubmitOrderRequest{}, invalid(field, "delivery city and state are required")
		}
		if city == "" {
			city = parsedCity
		}
		if uf == "" {
			uf = parsedState
		}
	}

	method, err := enums.ParsePaymentMethod(req.PaymentMethod)
	if err != nil {
		return backend.SubmitOrderRequest{}, invalid("payment_method", "payment method must be pix or card")
	}

	phone := strings.TrimSpace(req.RecipientPhone)
	if phone == "" {
		return backend.SubmitOrderRequest{}, invalid("recipient_phone", "recipient phone is required")
	}

	slot := strings.TrimSpace(req.DeliveryTime)
	if slot != "" && !f.delivery.SlotOffered(date, slot, state) {
		return backend.SubmitOrderRequest{}, invalid("delivery_time", "delivery time is not available for the chosen date")
	}

	return backend.SubmitOrderRequest{
		UserID:          userID,
		Items:           cart.OrderItems(state.Items),
		DeliveryAddress: strings.TrimSpace(req.DeliveryAddress),
		DeliveryCity:    city,
		DeliveryState:   uf,
		DeliveryDate:    dateValue,
		DeliveryTime:    slot,
		PaymentMethod:   method.String(),
		RecipientPhone:  phone,
		IsAnonymous:     state.Anonymous,
		Complement:      state.Complement,
	}, nil
}

func invalid(field, message string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, message).WithDetails(map[string]string{"field": field})
}
