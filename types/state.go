package types

import (
	"maps"
	"slices"
	"strings"
	"time"
)

type ActionParameters struct {
	SpinType         SpinType         `json:"spin_type,omitempty"`
	QuestionText     string           `json:"question_to_answer_text,omitempty"`
	RepetitionStatus RepetitionStatus `json:"repetition_status,omitempty"`
	VagueStatement   string           `json:"vague_statement_text,omitempty"`
	ObjectionText    string           `json:"objection_text_to_address,omitempty"`
	AttemptNumber    int              `json:"attempt_number,omitempty"`
	OffTopicText     string           `json:"off_topic_text,omitempty"`
	InterruptedTopic string           `json:"interrupted_goal_topic,omitempty"`
	Reason           string           `json:"reason,omitempty"`
	ProductName      string           `json:"product_name,omitempty"`
	KeyBenefit       string           `json:"key_benefit,omitempty"`
	Quantity         int              `json:"quantity,omitempty"`
	Price            float64          `json:"price,omitempty"`
	PriceInfo        string           `json:"price_info,omitempty"`
	FollowUpAttempt  int              `json:"follow_up_attempt,omitempty"`
	Message          string           `json:"message,omitempty"`
}

type AgentAction struct {
	Type         ActionType       `json:"action_type"`
	Parameters   ActionParameters `json:"parameters"`
	RenderedText string           `json:"rendered_text,omitempty"`
	AttemptCount int              `json:"attempt_count"`
	Turn         int              `json:"turn"`
}

type Interruption struct {
	ID               string             `json:"id"`
	Kind             InterruptionKind   `json:"kind"`
	Text             string             `json:"text"`
	Status           InterruptionStatus `json:"status"`
	TurnDetected     int                `json:"turn_detected"`
	RepetitionStatus RepetitionStatus   `json:"repetition_status,omitempty"`
}

type ObjectionEntry struct {
	Text       string          `json:"text"`
	Status     ObjectionStatus `json:"status"`
	Attempts   int             `json:"attempts"`
	SourceTurn int             `json:"source_turn"`
}

// ProfileEntry is the shape shared by needs and pain points.
type ProfileEntry struct {
	Text          string      `json:"text"`
	Status        EntryStatus `json:"status"`
	SourceTurn    int         `json:"source_turn"`
	ConfirmedTurn int         `json:"confirmed_turn,omitempty"`
}

type CustomerProfile struct {
	Needs            []ProfileEntry    `json:"needs"`
	PainPoints       []ProfileEntry    `json:"pain_points"`
	Objections       []ObjectionEntry  `json:"objections"`
	Certainty        map[string]int    `json:"certainty"`
	Facts            map[string]string `json:"facts,omitempty"`
	LastIntent       Intent            `json:"last_intent,omitempty"`
	LastResponseType ResponseType      `json:"last_response_type,omitempty"`
}

type QuestionEntry struct {
	CoreText  string         `json:"core_text"`
	TurnAsked int            `json:"turn_asked"`
	Status    QuestionStatus `json:"status"`
	Attempts  int            `json:"attempts"`
	// RepeatedTurn is the last turn that counted a repetition of this entry.
	RepeatedTurn int `json:"repeated_turn,omitempty"`
}

type Proposal struct {
	ProductName string  `json:"product_name"`
	Quantity    int     `json:"quantity"`
	Price       float64 `json:"price"`
	PriceInfo   string  `json:"price_info,omitempty"`
}

type FollowUp struct {
	Scheduled    bool       `json:"scheduled"`
	AttemptCount int        `json:"attempt_count"`
	DueAt        *time.Time `json:"due_at,omitempty"`
}

// TurnScratch holds values that only live for the duration of one turn. The
// finalizer clears it before the state is committed.
type TurnScratch struct {
	Trigger          Trigger           `json:"trigger,omitempty"`
	Analysis         *TurnAnalysis     `json:"analysis,omitempty"`
	PlannedAction    ActionType        `json:"planned_action,omitempty"`
	ActionParameters *ActionParameters `json:"action_parameters,omitempty"`
	RetrievedContext string            `json:"retrieved_context,omitempty"`
	RawGeneration    string            `json:"raw_generation,omitempty"`
	TurnError        string            `json:"turn_error,omitempty"`
}

func (s TurnScratch) Empty() bool {
	return s == (TurnScratch{})
}

type ConversationState struct {
	ConversationID    string          `json:"conversation_id"`
	TurnNumber        int             `json:"turn_number"`
	Goals             GoalStack       `json:"goal_stack"`
	LastAgentAction   *AgentAction    `json:"last_agent_action,omitempty"`
	InterruptionQueue []Interruption  `json:"interruption_queue"`
	Profile           CustomerProfile `json:"customer_profile"`
	QuestionLog       []QuestionEntry `json:"question_log"`
	ActiveProposal    *Proposal       `json:"active_proposal,omitempty"`
	ClosingStatus     ClosingStatus   `json:"closing_status"`
	FollowUp          FollowUp        `json:"follow_up"`
	Scratch           TurnScratch     `json:"scratch,omitzero"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// NewConversationState returns the state of a conversation at first contact.
func NewConversationState(conversationID string) *ConversationState {
	now := time.Now()
	return &ConversationState{
		ConversationID:    conversationID,
		Goals:             NewGoalStack(NewGoal(GoalIdle)),
		InterruptionQueue: []Interruption{},
		Profile: CustomerProfile{
			Needs:      []ProfileEntry{},
			PainPoints: []ProfileEntry{},
			Objections: []ObjectionEntry{},
			Certainty:  map[string]int{},
		},
		QuestionLog:   []QuestionEntry{},
		ClosingStatus: ClosingNotStarted,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func (s *ConversationState) Clone() *ConversationState {
	if s == nil {
		return nil
	}
	out := *s
	out.Goals = s.Goals.Clone()
	if s.LastAgentAction != nil {
		action := *s.LastAgentAction
		out.LastAgentAction = &action
	}
	out.InterruptionQueue = slices.Clone(s.InterruptionQueue)
	out.Profile = s.Profile.Clone()
	out.QuestionLog = slices.Clone(s.QuestionLog)
	if s.ActiveProposal != nil {
		proposal := *s.ActiveProposal
		out.ActiveProposal = &proposal
	}
	out.FollowUp = s.FollowUp.Clone()
	if s.Scratch.Analysis != nil {
		analysis := s.Scratch.Analysis.Clone()
		out.Scratch.Analysis = analysis
	}
	if s.Scratch.ActionParameters != nil {
		params := *s.Scratch.ActionParameters
		out.Scratch.ActionParameters = &params
	}
	return &out
}

func (p CustomerProfile) Clone() CustomerProfile {
	out := p
	out.Needs = slices.Clone(p.Needs)
	out.PainPoints = slices.Clone(p.PainPoints)
	out.Objections = slices.Clone(p.Objections)
	out.Certainty = maps.Clone(p.Certainty)
	out.Facts = maps.Clone(p.Facts)
	return out
}

func (f FollowUp) Clone() FollowUp {
	out := f
	if f.DueAt != nil {
		due := *f.DueAt
		out.DueAt = &due
	}
	return out
}

// FindOpenObjection returns the index of the most recent objection with the
// given text that is still active or being addressed, or -1.
func (p CustomerProfile) FindOpenObjection(text string) int {
	for i := len(p.Objections) - 1; i >= 0; i-- {
		obj := p.Objections[i]
		if obj.Status.Open() && SameText(obj.Text, text) {
			return i
		}
	}
	return -1
}

// FindObjection returns the index of the most recent objection with the
// given text regardless of status, or -1.
func (p CustomerProfile) FindObjection(text string) int {
	for i := len(p.Objections) - 1; i >= 0; i-- {
		if SameText(p.Objections[i].Text, text) {
			return i
		}
	}
	return -1
}

func (p CustomerProfile) HasOpenObjections() bool {
	for _, obj := range p.Objections {
		if obj.Status.Open() {
			return true
		}
	}
	return false
}

// PriorityNeed returns the most recent confirmed need, falling back to the
// most recent active one.
func (p CustomerProfile) PriorityNeed() (ProfileEntry, bool) {
	for _, status := range []EntryStatus{EntryConfirmed, EntryActive} {
		for i := len(p.Needs) - 1; i >= 0; i-- {
			if p.Needs[i].Status == status {
				return p.Needs[i], true
			}
		}
	}
	return ProfileEntry{}, false
}

// NeedConfirmedAt reports whether a need was confirmed during the given turn.
func (p CustomerProfile) NeedConfirmedAt(turn int) bool {
	for _, need := range p.Needs {
		if need.Status == EntryConfirmed && need.ConfirmedTurn == turn {
			return true
		}
	}
	return false
}

// SameText compares two customer phrases ignoring case and surrounding space.
func SameText(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
