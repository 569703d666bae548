package billing

// SubscribeRequest is the body of POST /subscribe
type SubscribeRequest struct {
	Plan string `json:"plan" validate:"required,plan"`
}

// CheckoutResponse carries the hosted checkout session back to the client
type CheckoutResponse struct {
	SessionID   string `json:"session_id"`
	CheckoutURL string `json:"checkout_url"`
}
