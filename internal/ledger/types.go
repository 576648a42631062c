package ledger

// Output is one payment output in a composed unit.
type Output struct {
	Address string `json:"address"`
	Amount  int64  `json:"amount"`
}

// Message is an application payload carried by a unit, e.g. an attestation
// envelope.
type Message struct {
	App     string      `json:"app"`
	Payload interface{} `json:"payload"`
}

// UnitOutput is one output of an observed payment unit.
type UnitOutput struct {
	Address string `json:"address"`
	Amount  int64  `json:"amount"`
	Asset   string `json:"asset,omitempty"`
}

// PaymentUnit is a payment observed by the wallet node.
type PaymentUnit struct {
	Unit    string       `json:"unit"`
	Authors []string     `json:"authors"`
	Outputs []UnitOutput `json:"outputs"`
}

// EventPayload is the body the wallet node delivers to our webhook endpoint.
type EventPayload struct {
	EventType string        `json:"event_type"` // "payments_observed" | "payments_confirmed"
	Units     []PaymentUnit `json:"units"`
}

// Event types pushed by the wallet node.
const (
	EventPaymentsObserved  = "payments_observed"
	EventPaymentsConfirmed = "payments_confirmed"
)

type issueAddressResponse struct {
	Address string `json:"address"`
}

type broadcastRequest struct {
	PayingAddress string    `json:"paying_address"`
	Outputs       []Output  `json:"outputs"`
	Messages      []Message `json:"messages,omitempty"`
}

type broadcastResponse struct {
	Unit string `json:"unit"`
}

type balanceResponse struct {
	Address string `json:"address"`
	Balance int64  `json:"balance"`
}

type syncStatusResponse struct {
	IsSyncing bool `json:"is_syncing"`
}

type unitAuthorsResponse struct {
	Authors []string `json:"authors"`
}

type fundingAddressResponse struct {
	Address string `json:"address"`
}

type subscribeRequest struct {
	Endpoint  string   `json:"endpoint"`
	Addresses []string `json:"addresses"`
}
