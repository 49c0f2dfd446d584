package domain

import "encoding/json"

// Notification is the body Bitmarket POSTs to the callback URL. Exactly one
// of Order or Payout is set on a well-formed delivery.
type Notification struct {
	Order  *OrderEvent     `json:"order"`
	Payout json.RawMessage `json:"payout"`
}

// OrderEvent echoes back the order we created the payment request for.
// Custom carries the host order id we supplied at checkout; ID is Bitmarket's
// own identifier. Status is matched case-insensitively.
type OrderEvent struct {
	ID       string         `json:"id"`
	Custom   string         `json:"custom"`
	Status   string         `json:"status"`
	Customer *OrderCustomer `json:"customer"`
}

type OrderCustomer struct {
	Email string `json:"email"`
}

func (e *OrderEvent) PayerEmail() string {
	if e.Customer == nil {
		return ""
	}
	return e.Customer.Email
}
