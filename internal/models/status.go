package models

import "time"

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusRefunded   OrderStatus = "refunded"
)

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

const PaymentMethodCashOnDelivery = "cash_on_delivery"

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed:  {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:    {OrderStatusDelivered},
	OrderStatusDelivered:  {OrderStatusRefunded},
	OrderStatusCancelled:  nil,
	OrderStatusRefunded:   nil,
}

func (s OrderStatus) Valid() bool {
	_, ok := orderTransitions[s]
	return ok
}

func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Cancellable reports whether an order in this status may still be cancelled.
func (s OrderStatus) Cancellable() bool {
	return s.CanTransitionTo(OrderStatusCancelled)
}

// Terminal reports whether no forward transition leaves this status.
// Delivered counts as terminal; refunding it is the one exception.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusDelivered, OrderStatusCancelled, OrderStatusRefunded:
		return true
	}
	return false
}

// ApplyStatus is the only mutation path for an order's status. A change to
// the current status is a no-op transition that still appends a history
// entry, which is how notes are attached to terminal orders.
func (o *Order) ApplyStatus(next OrderStatus, actor, note string, at time.Time) error {
	if !next.Valid() {
		return NewValidationError(FieldError{Field: "status", Message: "unknown order status " + string(next)})
	}
	if next != o.Status && !o.Status.CanTransitionTo(next) {
		return &TransitionError{From: o.Status, To: next}
	}

	if next != o.Status {
		o.Status = next
		switch next {
		case OrderStatusDelivered:
			if o.Payment.Method == PaymentMethodCashOnDelivery {
				o.Payment.Status = PaymentStatusPaid
			}
		case OrderStatusCancelled:
			if o.CancelledAt == nil {
				stamp := at
				o.CancelledAt = &stamp
			}
		case OrderStatusRefunded:
			o.Payment.Status = PaymentStatusRefunded
		}
	}
	if o.Status == OrderStatusDelivered && o.DeliveredAt == nil {
		stamp := at
		o.DeliveredAt = &stamp
	}

	o.StatusHistory = append(o.StatusHistory, StatusChange{
		Status:    next,
		Timestamp: at,
		Note:      note,
		Actor:     actor,
	})
	o.UpdatedAt = at
	return nil
}
