package models

import "time"

// Order sides.
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Order types.
const (
	OrderTypeMarket  = "MARKET"
	OrderTypeLimit   = "LIMIT"
	OrderTypeSLM     = "SL-M"
	OrderTypeSLL     = "SL-L"
	OrderTypeGTT     = "GTT"
	OrderTypeTrigger = "TRIGGER"
)

// Product types.
const (
	ProductMIS    = "MIS"
	ProductNormal = "NORMAL"
)

// Order status — a monotonic state machine except PENDING<->PARTIAL (spec §3).
const (
	OrderStatusPending   = "PENDING"
	OrderStatusPartial   = "PARTIAL"
	OrderStatusExecuted  = "EXECUTED"
	OrderStatusCancelled = "CANCELLED"
	OrderStatusRejected  = "REJECTED"
)

// Order is a simulated order routed through the Execution Engine.
type Order struct {
	ID              int64     `json:"id" db:"id"`
	UserID          int64     `json:"user_id" db:"user_id"`
	Symbol          string    `json:"symbol" db:"symbol"`
	ExchangeSegment string    `json:"exchange_segment" db:"exchange_segment"`
	Side            string    `json:"side" db:"transaction_type"`
	Quantity        int64     `json:"quantity" db:"quantity"`
	FilledQty       int64     `json:"filled_qty" db:"filled_qty"`
	OrderType       string    `json:"order_type" db:"order_type"`
	ProductType     string    `json:"product_type" db:"product_type"`
	Price           float64   `json:"price" db:"price"`
	TriggerPrice    float64   `json:"trigger_price,omitempty" db:"trigger_price"`
	Status          string    `json:"status" db:"status"`
	Remarks         string    `json:"remarks,omitempty" db:"remarks"`
	BasketID        *int64    `json:"basket_id,omitempty" db:"basket_id"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// IsTerminal reports whether the order has reached a sticky terminal status
// (EXECUTED, CANCELLED, REJECTED — spec §8 invariant).
func (o *Order) IsTerminal() bool {
	switch o.Status {
	case OrderStatusExecuted, OrderStatusCancelled, OrderStatusRejected:
		return true
	default:
		return false
	}
}

// IsTriggerBased reports whether the order must wait for a trigger crossing before
// behaving as MARKET or LIMIT (spec §4.4 trigger activation).
func (o *Order) IsTriggerBased() bool {
	switch o.OrderType {
	case OrderTypeSLM, OrderTypeSLL, OrderTypeTrigger, OrderTypeGTT:
		return true
	default:
		return false
	}
}

// Remaining returns the unfilled quantity.
func (o *Order) Remaining() int64 {
	return o.Quantity - o.FilledQty
}

// Trade is one execution fill recorded against an order.
type Trade struct {
	ID       int64     `json:"id" db:"id"`
	OrderID  int64     `json:"order_id" db:"order_id"`
	UserID   int64     `json:"user_id" db:"user_id"`
	Price    float64   `json:"price" db:"price"`
	Qty      int64     `json:"qty" db:"qty"`
	FilledAt time.Time `json:"filled_at" db:"filled_at"`
}

// ExecutionEvent types (spec §4.4 apply-fill transaction).
const (
	EventAccepted    = "ACCEPTED"
	EventPartialFill = "PARTIAL_FILL"
	EventFullFill    = "FULL_FILL"
	EventRejected    = "REJECTED"
)

// ExecutionEvent is an audit row emitted at every meaningful order-lifecycle step.
type ExecutionEvent struct {
	ID               int64     `json:"id" db:"id"`
	OrderID          int64     `json:"order_id" db:"order_id"`
	UserID           int64     `json:"user_id" db:"user_id"`
	Symbol           string    `json:"symbol" db:"symbol"`
	EventType        string    `json:"event_type" db:"event_type"`
	DecisionPrice    float64   `json:"decision_price,omitempty" db:"decision_time_price"`
	FillPrice        float64   `json:"fill_price,omitempty" db:"fill_price"`
	FillQuantity     int64     `json:"fill_quantity,omitempty" db:"fill_quantity"`
	Reason           string    `json:"reason,omitempty" db:"reason"`
	LatencyMs        int64     `json:"latency_ms,omitempty" db:"latency_ms"`
	Slippage         float64   `json:"slippage,omitempty" db:"slippage"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}

// Domain rejection reasons (spec §7 taxonomy), surfaced on the order record and as
// an ExecutionEvent.
const (
	ReasonUserBlocked        = "USER_BLOCKED"
	ReasonSegmentRestricted  = "SEGMENT_RESTRICTED"
	ReasonInvalidTrigger     = "INVALID_TRIGGER"
	ReasonNoLiquidityTimeout = "NO_LIQUIDITY_TIMEOUT"
	ReasonMarginExceeded     = "MARGIN_EXCEEDED"
)

// Basket status mirrors the aggregate state of its legs.
const (
	BasketStatusPending  = "PENDING"
	BasketStatusExecuted = "EXECUTED"
	BasketStatusPartial  = "PARTIAL"
	BasketStatusFailed   = "FAILED"
)

// Basket groups several order legs submitted and executed as one unit
// (spec §6: "basket create/append/execute").
type Basket struct {
	ID        int64     `json:"id" db:"id"`
	UserID    int64     `json:"user_id" db:"user_id"`
	Status    string    `json:"status" db:"status"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// BasketLeg is one order template appended to a basket prior to execution.
// OrderID is nil until the leg has been placed.
type BasketLeg struct {
	ID              int64   `json:"id" db:"id"`
	BasketID        int64   `json:"basket_id" db:"basket_id"`
	Symbol          string  `json:"symbol" db:"symbol"`
	ExchangeSegment string  `json:"exchange_segment" db:"exchange_segment"`
	Side            string  `json:"side" db:"transaction_type"`
	Quantity        int64   `json:"quantity" db:"quantity"`
	OrderType       string  `json:"order_type" db:"order_type"`
	ProductType     string  `json:"product_type" db:"product_type"`
	Price           float64 `json:"price" db:"price"`
	TriggerPrice    float64 `json:"trigger_price,omitempty" db:"trigger_price"`
	OrderID         *int64  `json:"order_id,omitempty" db:"order_id"`
	LegIndex        int     `json:"leg_index" db:"leg_index"`
}
