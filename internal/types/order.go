package types

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/moznion/go-optional"

	"github.com/deltastream-lab/tradesim/pkg/errors"
)

type Side string

type OrderType string

type OrderStatus string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

const (
	OrderStatusPending         OrderStatus = "PENDING"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusRejected        OrderStatus = "REJECTED"
)

// Rejection reasons recorded on terminal orders.
const (
	RejectReasonInsufficientMargin     string = "INSUFFICIENT_MARGIN"
	RejectReasonPositionLimitExceeded  string = "POSITION_LIMIT_EXCEEDED"
	RejectReasonOrderValueExceeded     string = "ORDER_VALUE_EXCEEDED"
	RejectReasonDailyLossLimitExceeded string = "DAILY_LOSS_LIMIT_EXCEEDED"
	RejectReasonConcentrationExceeded  string = "CONCENTRATION_EXCEEDED"
	RejectReasonInsufficientLiquidity  string = "INSUFFICIENT_LIQUIDITY"
	RejectReasonNotFillable            string = "NOT_FILLABLE"
	RejectReasonInvalidOrder           string = "INVALID_ORDER"
)

// OrderRequest is an inbound submission before it enters the order lifecycle.
// OwnerID is supplied by the transport layer; no authentication happens here.
type OrderRequest struct {
	OwnerID   string    `yaml:"owner_id" json:"owner_id" validate:"required"`
	Symbol    string    `yaml:"symbol" json:"symbol" validate:"required"`
	Side      Side      `yaml:"side" json:"side" validate:"required,oneof=BUY SELL"`
	OrderType OrderType `yaml:"order_type" json:"order_type" validate:"required,oneof=MARKET LIMIT"`
	Quantity  float64   `yaml:"quantity" json:"quantity" validate:"required,gt=0"`
	// LimitPrice is required for LIMIT orders and ignored for MARKET orders.
	LimitPrice optional.Option[float64] `yaml:"limit_price" json:"limit_price"`
}

type Order struct {
	OrderID    string                   `yaml:"order_id" json:"order_id"`
	OwnerID    string                   `yaml:"owner_id" json:"owner_id" validate:"required"`
	Symbol     string                   `yaml:"symbol" json:"symbol" validate:"required"`
	Side       Side                     `yaml:"side" json:"side" validate:"required,oneof=BUY SELL"`
	OrderType  OrderType                `yaml:"order_type" json:"order_type" validate:"required,oneof=MARKET LIMIT"`
	Quantity   float64                  `yaml:"quantity" json:"quantity" validate:"required,gt=0"`
	LimitPrice optional.Option[float64] `yaml:"limit_price" json:"limit_price"`
	// Status is the lifecycle state (PENDING, FILLED, PARTIALLY_FILLED, REJECTED).
	// Terminal orders are never mutated again.
	Status         OrderStatus `yaml:"status" json:"status"`
	FilledQuantity float64     `yaml:"filled_quantity" json:"filled_quantity"`
	// AvgFillPrice is the quantity-weighted mean price of all fills.
	AvgFillPrice    optional.Option[float64]   `yaml:"avg_fill_price" json:"avg_fill_price"`
	RejectionReason optional.Option[string]    `yaml:"rejection_reason" json:"rejection_reason"`
	CreatedAt       time.Time                  `yaml:"created_at" json:"created_at"`
	FilledAt        optional.Option[time.Time] `yaml:"filled_at" json:"filled_at"`
}

// Validate validates the OrderRequest struct. Limit orders must carry a
// positive limit price; this runs before any risk rule is evaluated.
func (r *OrderRequest) Validate() error {
	validate := validator.New()
	if err := validate.Struct(r); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidOrderRequest, "invalid order request", err)
	}

	if r.OrderType == OrderTypeLimit {
		if r.LimitPrice.IsNone() {
			return errors.New(errors.ErrCodeMissingLimitPrice, "limit order requires a limit price")
		}

		if r.LimitPrice.Unwrap() <= 0 {
			return errors.Newf(errors.ErrCodeMissingLimitPrice, "limit price must be positive, got %f", r.LimitPrice.Unwrap())
		}
	}

	return nil
}

// IsTerminal reports whether the order reached a final lifecycle state.
func (o *Order) IsTerminal() bool {
	switch o.Status {
	case OrderStatusFilled, OrderStatusPartiallyFilled, OrderStatusRejected:
		return true
	case OrderStatusPending:
		return false
	default:
		return false
	}
}
