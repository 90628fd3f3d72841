package types

import "time"

// StateDelta is a partial update of a ConversationState. A nil field means
// "unchanged"; components return deltas and only the finalizer commits them.
type StateDelta struct {
	TurnNumber        *int             `json:"turn_number,omitempty"`
	Goals             *GoalStack       `json:"goal_stack,omitempty"`
	LastAgentAction   *AgentAction     `json:"last_agent_action,omitempty"`
	InterruptionQueue *[]Interruption  `json:"interruption_queue,omitempty"`
	Profile           *CustomerProfile `json:"customer_profile,omitempty"`
	QuestionLog       *[]QuestionEntry `json:"question_log,omitempty"`
	ActiveProposal    *Proposal        `json:"active_proposal,omitempty"`
	ClosingStatus     *ClosingStatus   `json:"closing_status,omitempty"`
	FollowUp          *FollowUp        `json:"follow_up,omitempty"`
	Scratch           *TurnScratch     `json:"scratch,omitempty"`
}

// Some returns a pointer to a copy of v, for populating delta fields.
func Some[T any](v T) *T {
	return &v
}

func (d *StateDelta) Empty() bool {
	return d == nil || *d == (StateDelta{})
}

// Merge layers other on top of d; fields set in other win.
func (d *StateDelta) Merge(other *StateDelta) *StateDelta {
	if d == nil {
		d = &StateDelta{}
	}
	if other == nil {
		return d
	}
	if other.TurnNumber != nil {
		d.TurnNumber = other.TurnNumber
	}
	if other.Goals != nil {
		d.Goals = other.Goals
	}
	if other.LastAgentAction != nil {
		d.LastAgentAction = other.LastAgentAction
	}
	if other.InterruptionQueue != nil {
		d.InterruptionQueue = other.InterruptionQueue
	}
	if other.Profile != nil {
		d.Profile = other.Profile
	}
	if other.QuestionLog != nil {
		d.QuestionLog = other.QuestionLog
	}
	if other.ActiveProposal != nil {
		d.ActiveProposal = other.ActiveProposal
	}
	if other.ClosingStatus != nil {
		d.ClosingStatus = other.ClosingStatus
	}
	if other.FollowUp != nil {
		d.FollowUp = other.FollowUp
	}
	if other.Scratch != nil {
		d.Scratch = other.Scratch
	}
	return d
}

// Apply writes the populated fields of d onto state.
func (d *StateDelta) Apply(state *ConversationState) {
	if d == nil || state == nil {
		return
	}
	if d.TurnNumber != nil {
		state.TurnNumber = *d.TurnNumber
	}
	if d.Goals != nil {
		state.Goals = d.Goals.Clone()
	}
	if d.LastAgentAction != nil {
		action := *d.LastAgentAction
		state.LastAgentAction = &action
	}
	if d.InterruptionQueue != nil {
		state.InterruptionQueue = append([]Interruption{}, (*d.InterruptionQueue)...)
	}
	if d.Profile != nil {
		state.Profile = d.Profile.Clone()
	}
	if d.QuestionLog != nil {
		state.QuestionLog = append([]QuestionEntry{}, (*d.QuestionLog)...)
	}
	if d.ActiveProposal != nil {
		proposal := *d.ActiveProposal
		state.ActiveProposal = &proposal
	}
	if d.ClosingStatus != nil {
		state.ClosingStatus = *d.ClosingStatus
	}
	if d.FollowUp != nil {
		state.FollowUp = d.FollowUp.Clone()
	}
	if d.Scratch != nil {
		state.Scratch = *d.Scratch
	}
	state.UpdatedAt = time.Now()
}

// Applied returns a copy of state with d applied, leaving state untouched.
func (d *StateDelta) Applied(state *ConversationState) *ConversationState {
	out := state.Clone()
	d.Apply(out)
	return out
}
