package keys

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// KeyInfo is the public metadata exposed for a signer.
type KeyInfo struct {
	SignerID  string    `json:"signerId"`
	Algorithm string    `json:"algorithm"`
	PublicKey string    `json:"publicKey"` // base64 raw key
	CreatedAt time.Time `json:"createdAt"`
}

// Registry is a small in-memory registry of signer public keys so that clients
// can discover which key signs credentials and audit events.
// It is safe for concurrent access.
type Registry struct {
	mtx  sync.RWMutex
	keys map[string]KeyInfo
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		keys: make(map[string]KeyInfo),
	}
}

// Add registers the public half of kp under signerID, overwriting any previous entry.
func (r *Registry) Add(signerID string, kp *KeyPair) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.keys[signerID] = KeyInfo{
		SignerID:  signerID,
		Algorithm: Algorithm,
		PublicKey: base64.StdEncoding.EncodeToString(kp.PublicKey()),
		CreatedAt: time.Now().UTC(),
	}
}

// Get returns a copy of the KeyInfo for signerID.
func (r *Registry) Get(signerID string) (*KeyInfo, bool) {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	ki, ok := r.keys[signerID]
	if !ok {
		return nil, false
	}
	c := ki
	return &c, true
}

// List returns all registered signers.
func (r *Registry) List() []KeyInfo {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	out := make([]KeyInfo, 0, len(r.keys))
	for _, v := range r.keys {
		out = append(out, v)
	}
	return out
}

// StatusHandler exposes the registry as JSON: { "signers": [ KeyInfo, ... ] }
func (r *Registry) StatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		resp := map[string]interface{}{"signers": r.List()}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}
