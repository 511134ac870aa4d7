package models

import (
	"encoding/hex"

	"github.com/google/uuid"
)

// NewCompletionID returns a fresh chat completion identifier.
func NewCompletionID() string {
	return "chatcmpl-" + randomHex()
}

// NewScoreID returns a fresh score evaluation identifier.
func NewScoreID() string {
	return "scoreval-" + randomHex()
}

// NewToolCallID returns a fresh tool call identifier.
func NewToolCallID() string {
	return "call_" + randomHex()
}

func randomHex() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}
