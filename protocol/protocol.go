// Package protocol defines the wire contract shared by the duelgrounds
// server and its clients: the response envelope, the stable rejection
// codes, and the payload shapes for the REST and stream endpoints.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Version is bumped whenever a wire shape changes incompatibly.
const Version = 1

// Code is a stable, machine-readable rejection code. Codes never change
// once shipped; clients are expected to switch on them.
type Code string

const (
	CodeValidation         Code = "VALIDATION_ERROR"
	CodeWeakPassword       Code = "WEAK_PASSWORD"
	CodeDuplicateUser      Code = "DUPLICATE_USER"
	CodeInvalidCredentials Code = "INVALID_CREDENTIALS"
	CodeUnauthorized       Code = "UNAUTHORIZED"
	CodeBanned             Code = "BANNED"
	CodeForbidden          Code = "FORBIDDEN"
	CodeNotFound           Code = "NOT_FOUND"
	CodeUserNotFound       Code = "USER_NOT_FOUND"
	CodeNoWeaponEquipped   Code = "NO_WEAPON_EQUIPPED"
	CodeOutOfRange         Code = "OUT_OF_RANGE"
	CodeTargetPvPDisabled  Code = "TARGET_PVP_DISABLED"
	CodeWeaponNotOwned     Code = "WEAPON_NOT_OWNED"
	CodeQuestNotFound      Code = "QUEST_NOT_FOUND"
	CodeSkillNotFound      Code = "SKILL_NOT_FOUND"
	CodeInternal           Code = "INTERNAL_ERROR"
)

// WireError is the error half of the response envelope. It doubles as a
// Go error so services can return it directly and handlers can unwrap it
// with errors.As.
type WireError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

func (e *WireError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Reject builds a WireError for a stable code.
func Reject(code Code, message string) *WireError {
	return &WireError{Code: code, Message: message}
}

// Envelope wraps every REST response body.
type Envelope struct {
	OK    bool       `json:"ok"`
	Data  any        `json:"data,omitempty"`
	Error *WireError `json:"error,omitempty"`
}

// envelopeIn mirrors Envelope with a raw data payload for decoding.
type envelopeIn struct {
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data"`
	Error *WireError      `json:"error"`
}

// DecodeEnvelope parses a response body and returns the raw data payload,
// or the server's WireError when ok=false.
func DecodeEnvelope(body []byte) (json.RawMessage, error) {
	var env envelopeIn
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("malformed envelope: %w", err)
	}
	if !env.OK {
		if env.Error != nil {
			return nil, env.Error
		}
		return nil, fmt.Errorf("rejected without error detail")
	}
	return env.Data, nil
}
