package agent

import (
	"time"

	"github.com/tbxark/salesagent/types"
)

type Request struct {
	ConversationID string        `json:"conversation_id"`
	UserInput      string        `json:"user_input,omitempty"`
	Trigger        types.Trigger `json:"trigger,omitempty"`
	// FiredAt is when a follow-up timeout was found due. A timeout whose
	// schedule moved past it is skipped.
	FiredAt time.Time `json:"-"`
}

type Response struct {
	// Message is empty when the agent waits this turn.
	Message  string                   `json:"message,omitempty"`
	Action   *types.AgentAction       `json:"action,omitempty"`
	State    *types.ConversationState `json:"state,omitempty"`
	Metadata map[string]string        `json:"metadata,omitempty"`
}
