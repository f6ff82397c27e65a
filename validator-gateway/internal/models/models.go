package models

// CredentialMessage is the constant payload signed by /get_credentials.
const CredentialMessage = "This is a secure message"

// SignedMessage is returned by the credentials endpoint.
type SignedMessage struct {
	Message   string `json:"message"`
	Signature string `json:"signature"` // base64 std encoding
	SignerID  string `json:"signerId"`
	Token     string `json:"token,omitempty"`
}

// SpoofResult is the fake classification output of /checkimage.
type SpoofResult struct {
	AIGenerated bool      `json:"ai-generated"`
	Predictions []float64 `json:"predictions"`
}

// ForwardRequest is the body POSTed to the validator proxy.
type ForwardRequest struct {
	Image         string `json:"image"`
	Authorization string `json:"authorization"`
}

// ForwardResult aggregates the validator response.
type ForwardResult struct {
	Predictions []float64 `json:"predictions"`
	AIGenerated bool      `json:"ai-generated"`
	// Prediction mirrors AIGenerated as 0/1 for older clients.
	Prediction int `json:"prediction"`
	// Status is the upstream HTTP status, forwarded to the caller.
	Status int `json:"-"`
}
