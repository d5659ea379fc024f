package types

type SuccessEnvelope struct {
	Data any `json:"data"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// FunctionError is the body the payment function endpoints return on failure.
// The storefront reads only the message.
type FunctionError struct {
	Error string `json:"error"`
}
