package gateway

type createPaymentRequest struct {
	OrderRef    string `json:"orderRef"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	CallbackURL string `json:"callbackUrl,omitempty"`
}

type createPaymentResponse struct {
	OrderRef   string `json:"orderRef"`
	PaymentURL string `json:"paymentUrl"`
	Status     string `json:"status"`
}

type paymentStatusResponse struct {
	OrderRef string `json:"orderRef"`
	Status   string `json:"status"`
	Amount   string `json:"amount"`
}

// ErrorResponse is the gateway's error body
type ErrorResponse struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *ErrorResponse) Error() string {
	return "gateway error " + e.Code + ": " + e.Message
}
