package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
)

// DefaultTTL is how long a stored response can be replayed
const DefaultTTL = 24 * time.Hour

// Record is a stored response for an idempotency key
type Record struct {
	ID             uuid.UUID       `db:"id"`
	IdempotencyKey string          `db:"idempotency_key"`
	RequestPath    string          `db:"request_path"`
	RequestMethod  string          `db:"request_method"`
	RequestHash    string          `db:"request_hash"`
	UserID         *uuid.UUID      `db:"user_id"`
	ResponseStatus int             `db:"response_status"`
	ResponseBody   json.RawMessage `db:"response_body"`
	CreatedAt      time.Time       `db:"created_at"`
	ExpiresAt      time.Time       `db:"expires_at"`
}

// Store persists idempotency records
type Store interface {
	Get(ctx context.Context, key string) (*Record, error)
	Create(ctx context.Context, record *Record) error
	DeleteExpired(ctx context.Context) (int64, error)
}

// Response is a cached response candidate for replay
type Response struct {
	Status int
	Body   json.RawMessage
}

// ValidateKey checks the shape of a client supplied key
func ValidateKey(key string) error {
	if len(key) < 16 || len(key) > 128 {
		return fmt.Errorf("idempotency key must be between 16 and 128 characters")
	}
	for _, r := range key {
		if !(r == '-' || r == '_' || (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')) {
			return fmt.Errorf("idempotency key contains invalid character %q", r)
		}
	}
	return nil
}

// ReadBody reads at most limit bytes of a request body
func ReadBody(body io.Reader, limit int64) ([]byte, error) {
	if body == nil {
		return nil, nil
	}
	data, err := io.ReadAll(io.LimitReader(body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("request body exceeds %d bytes", limit)
	}
	return data, nil
}

// ScopedKey namespaces a client key by caller so two users cannot replay
// each other's responses
func ScopedKey(userID *uuid.UUID, key string) string {
	if userID == nil {
		return "anon:" + key
	}
	return userID.String() + ":" + key
}

// HashRequest fingerprints a request by method, route and body
func HashRequest(method, route string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{0})
	h.Write([]byte(route))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// ShouldReturnCached decides whether a stored response can be replayed for a
// request with the given body hash
func ShouldReturnCached(cached *Response, requestHash, storedHash string) (bool, string) {
	if requestHash != storedHash {
		return false, "idempotency key was already used with a different request body"
	}
	if cached.Status >= 500 {
		return false, "previous attempt failed with a server error; retry with a new key"
	}
	return true, ""
}
