package pipeline

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind enumerates the ways a request can be turned away.
type Kind int

const (
	KindMissingHeader Kind = iota + 1
	KindInvalidFormat
	KindUnauthenticated
	KindHashMismatch
	KindMalformedToken
	KindUnknownToken
	KindReplay
	KindExpired
	KindDecryption
	KindBadRequest
	KindInternal
)

type kindInfo struct {
	name   string
	code   string
	status int
}

var kinds = map[Kind]kindInfo{
	KindMissingHeader:   {"missing_header", "MISSING_SECURITY_HEADER", http.StatusForbidden},
	KindInvalidFormat:   {"invalid_format", "INVALID_SECURITY_HEADER", http.StatusBadRequest},
	KindUnauthenticated: {"unauthenticated", "UNAUTHENTICATED", http.StatusUnauthorized},
	KindHashMismatch:    {"hash_mismatch", "INVALID_REQUEST_HASH", http.StatusForbidden},
	KindMalformedToken:  {"malformed_token", "INVALID_XREQ_TOKEN", http.StatusBadRequest},
	KindUnknownToken:    {"unknown_token", "INVALID_XREQ_TOKEN", http.StatusForbidden},
	KindReplay:          {"replay", "XREQ_REPLAY_DETECTED", http.StatusForbidden},
	KindExpired:         {"expired", "XREQ_TOKEN_EXPIRED", http.StatusForbidden},
	KindDecryption:      {"decryption_failure", "DECRYPTION_FAILED", http.StatusBadRequest},
	KindBadRequest:      {"bad_request", "INVALID_REQUEST", http.StatusBadRequest},
	KindInternal:        {"internal", "INTERNAL_ERROR", http.StatusInternalServerError},
}

func (k Kind) String() string {
	if info, ok := kinds[k]; ok {
		return info.name
	}
	return "unknown"
}

// Rejection is the single error shape returned to clients.
type Rejection struct {
	Kind    Kind
	Code    string
	Message string
	Status  int
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("%s: %s", r.Code, r.Message)
}

// Reject builds a Rejection with the code and status registered for kind.
func Reject(kind Kind, message string) *Rejection {
	info, ok := kinds[kind]
	if !ok {
		info = kinds[KindInternal]
		kind = KindInternal
	}
	return &Rejection{Kind: kind, Code: info.code, Message: message, Status: info.status}
}

// BadRequest is a convenience for downstream handlers rejecting a payload.
func BadRequest(message string) *Rejection {
	return Reject(KindBadRequest, message)
}

// Internal hides the cause behind a generic message.
func Internal() *Rejection {
	return Reject(KindInternal, "Internal server error")
}

// AsRejection unwraps err into a Rejection, mapping anything else to Internal.
func AsRejection(err error) *Rejection {
	var rej *Rejection
	if errors.As(err, &rej) {
		return rej
	}
	return Internal()
}

// ErrorBody is the JSON body written for a rejection.
type ErrorBody struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Body renders the rejection for the wire.
func (r *Rejection) Body() ErrorBody {
	return ErrorBody{Status: "error", Code: r.Code, Message: r.Message}
}

// SuccessBody is the JSON body written for an accepted request.
type SuccessBody struct {
	Status    string `json:"status"`
	Encrypted bool   `json:"encrypted,omitempty"`
	Data      any    `json:"data,omitempty"`
}
