package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/stagehq/stagehand/pkg/domain"
)

// TokenHeader carries the lease token on guarded requests.
const TokenHeader = "X-Stagehand-Token"

// Error kinds on the wire. They map 1:1 onto the domain sentinels so any
// transport that preserves them keeps the lease and retry contracts intact.
const (
	kindNotFound        = "not_found"
	kindDuplicateName   = "duplicate_name"
	kindUnavailable     = "unavailable"
	kindLocked          = "locked"
	kindTimedOut        = "timed_out"
	kindCommunication   = "communication"
	kindInvalidValue    = "invalid_value"
	kindInstrumentFault = "instrument_fault"
	kindInternal        = "internal"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type lockRequest struct {
	ClientID string `json:"client_id"`
	TTLMS    int64  `json:"ttl_ms"`
}

type lockResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type valueRequest struct {
	Value any `json:"value"`
}

type valueResponse struct {
	Value any `json:"value"`
}

type triggerRequest struct {
	Seq uint64 `json:"seq"`
}

type readResponse struct {
	Seq    uint64             `json:"seq"`
	Values map[string]float64 `json:"values"`
}

type instrumentInfo struct {
	Name       string                       `json:"name"`
	State      domain.HandleState           `json:"state"`
	Parameters []domain.ParameterDescriptor `json:"parameters,omitempty"`
}

// kindOf maps a domain error to its wire kind and HTTP status.
func kindOf(err error) (string, int) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return kindNotFound, http.StatusNotFound
	case errors.Is(err, domain.ErrDuplicateName):
		return kindDuplicateName, http.StatusConflict
	case errors.Is(err, domain.ErrUnavailable):
		return kindUnavailable, http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrLocked):
		return kindLocked, http.StatusLocked
	case errors.Is(err, domain.ErrTimedOut):
		return kindTimedOut, http.StatusGatewayTimeout
	case errors.Is(err, domain.ErrCommunication):
		return kindCommunication, http.StatusBadGateway
	case errors.Is(err, domain.ErrInvalidValue):
		return kindInvalidValue, http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrInstrumentFault):
		return kindInstrumentFault, http.StatusBadGateway
	}
	return kindInternal, http.StatusInternalServerError
}

// errOf reconstructs the domain error for a wire kind on the client side.
func errOf(kind, message string) error {
	var sentinel error
	switch kind {
	case kindNotFound:
		sentinel = domain.ErrNotFound
	case kindDuplicateName:
		sentinel = domain.ErrDuplicateName
	case kindUnavailable:
		sentinel = domain.ErrUnavailable
	case kindLocked:
		sentinel = domain.ErrLocked
	case kindTimedOut:
		sentinel = domain.ErrTimedOut
	case kindCommunication:
		sentinel = domain.ErrCommunication
	case kindInvalidValue:
		sentinel = domain.ErrInvalidValue
	case kindInstrumentFault:
		sentinel = domain.ErrInstrumentFault
	default:
		return fmt.Errorf("remote error: %s", message)
	}
	return fmt.Errorf("%w: %s", sentinel, message)
}
