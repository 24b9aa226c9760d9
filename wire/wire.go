// Package wire defines the JSON frames exchanged with chat clients.
// Frames are small typed envelopes; key and ciphertext payloads are opaque
// strings that are never interpreted server-side.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Inbound frame types.
const (
	TypeJoin             = "join"
	TypePublicKey        = "publicKey"
	TypeEncryptedMessage = "encryptedMessage"
)

// Outbound frame types.
const (
	TypeMatched                 = "matched"
	TypePartnerPublicKey        = "partnerPublicKey"
	TypeTimerUpdate             = "timerUpdate"
	TypePartnerEncryptedMessage = "partnerEncryptedMessage"
	TypeSessionEnd              = "sessionEnd"
)

// Roles a client may join under.
const (
	RoleCaretaker  = "caretaker"
	RoleHelpseeker = "helpseeker"
)

// Session end reasons.
const (
	ReasonTimeout    = "timeout"
	ReasonDisconnect = "disconnect"
)

var (
	ErrUnknownType  = errors.New("wire: unknown message type")
	ErrMissingField = errors.New("wire: missing required field")
)

// Inbound is a decoded client frame. Exactly one payload field is set,
// according to Type.
type Inbound struct {
	Type string `json:"type"`
	Role string `json:"role,omitempty"`
	Key  string `json:"key,omitempty"`
	Data string `json:"data,omitempty"`
}

// Decode parses a raw client frame and validates the fields its type
// requires. Unknown types and missing fields yield typed errors so the
// caller can drop the frame without tearing the connection down.
func Decode(raw []byte) (Inbound, error) {
	var in Inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		return Inbound{}, fmt.Errorf("wire: decode: %w", err)
	}
	switch in.Type {
	case TypeJoin:
		if in.Role != RoleCaretaker && in.Role != RoleHelpseeker {
			return Inbound{}, fmt.Errorf("%w: role", ErrMissingField)
		}
	case TypePublicKey:
		if in.Key == "" {
			return Inbound{}, fmt.Errorf("%w: key", ErrMissingField)
		}
	case TypeEncryptedMessage:
		if in.Data == "" {
			return Inbound{}, fmt.Errorf("%w: data", ErrMissingField)
		}
	default:
		return Inbound{}, fmt.Errorf("%w: %q", ErrUnknownType, in.Type)
	}
	return in, nil
}

// Outbound is a server frame. Only the fields relevant to Type are
// populated; omitempty keeps the envelope minimal on the wire.
type Outbound struct {
	Type             string `json:"type"`
	Role             string `json:"role,omitempty"`
	SessionID        string `json:"sessionId,omitempty"`
	Key              string `json:"key,omitempty"`
	Data             string `json:"data,omitempty"`
	RemainingSeconds *int   `json:"remainingSeconds,omitempty"`
	Reason           string `json:"reason,omitempty"`
}

// Encode marshals the frame. The envelope is trivially marshalable, so the
// error path exists only for the compiler's sake.
func (o Outbound) Encode() []byte {
	data, _ := json.Marshal(o)
	return data
}

func Matched(role, sessionID string) Outbound {
	return Outbound{Type: TypeMatched, Role: role, SessionID: sessionID}
}

func PartnerPublicKey(key string) Outbound {
	return Outbound{Type: TypePartnerPublicKey, Key: key}
}

func TimerUpdate(remainingSeconds int) Outbound {
	return Outbound{Type: TypeTimerUpdate, RemainingSeconds: &remainingSeconds}
}

func PartnerEncryptedMessage(data string) Outbound {
	return Outbound{Type: TypePartnerEncryptedMessage, Data: data}
}

func SessionEnd(reason string) Outbound {
	return Outbound{Type: TypeSessionEnd, Reason: reason}
}

// OtherRole returns the partner role for a valid role string.
func OtherRole(role string) string {
	if role == RoleCaretaker {
		return RoleHelpseeker
	}
	return RoleCaretaker
}
