package models

// OrderRequest asks the gateway to open a checkout for a booking.
type OrderRequest struct {
	BookingID   int64
	Amount      int64
	Currency    string
	Description string
}

// PaymentOrder is returned to the client to open the hosted checkout.
type PaymentOrder struct {
	OrderID      string `json:"orderID"`
	KeyID        string `json:"key_id"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
	AuthorizeURI string `json:"authorize_uri,omitempty"`
}

const (
	ChargeSuccessful = "successful"
	ChargeFailed     = "failed"
	ChargePending    = "pending"
)

// Charge is the gateway's view of a payment, fetched server-side.
type Charge struct {
	ID            string
	Amount        int64
	Currency      string
	Status        string
	BookingID     string
	FailureCode   string
	FailureReason string
}

type GatewayEvent struct {
	ID     string
	Key    string
	Charge *Charge
}
