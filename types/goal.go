package types

// GoalDetails carries the per-goal bookkeeping. Only the fields relevant to
// the goal type are populated.
type GoalDetails struct {
	SpinQuestionsAsked    int              `json:"spin_questions_asked_in_cycle,omitempty"`
	LastSpinType          SpinType         `json:"last_spin_type_asked,omitempty"`
	OriginalObjectionText string           `json:"original_objection_text,omitempty"`
	QuestionText          string           `json:"question_text,omitempty"`
	RepetitionStatus      RepetitionStatus `json:"repetition_status,omitempty"`
	VagueStatement        string           `json:"vague_statement,omitempty"`
	OffTopicText          string           `json:"off_topic_text,omitempty"`
	ClosingStep           string           `json:"closing_step,omitempty"`
	ProductName           string           `json:"product_name,omitempty"`
	KeyBenefit            string           `json:"key_benefit,omitempty"`
	Reason                string           `json:"reason,omitempty"`
}

type AgentGoal struct {
	Type    GoalType    `json:"goal_type"`
	Details GoalDetails `json:"goal_details"`
}

func NewGoal(goalType GoalType) AgentGoal {
	return AgentGoal{Type: goalType}
}

// GoalStack holds the active goal and at most one interrupted goal. The
// interrupted goal never carries a previous goal of its own, so the stack
// depth is bounded at two by construction.
type GoalStack struct {
	Top      AgentGoal  `json:"top"`
	Previous *AgentGoal `json:"previous,omitempty"`
}

func NewGoalStack(goal AgentGoal) GoalStack {
	return GoalStack{Top: goal}
}

func (s GoalStack) Depth() int {
	if s.Previous == nil {
		return 1
	}
	return 2
}

// Interrupt makes goal the active goal. The current top is stored as the
// previous goal unless it is itself temporary, in which case the goal it had
// interrupted stays stored.
func (s *GoalStack) Interrupt(goal AgentGoal) {
	if !s.Top.Type.Temporary() {
		prev := s.Top
		s.Previous = &prev
	}
	s.Top = goal
}

// Resume pops the previous goal back to the top. It reports false when there
// is nothing to resume.
func (s *GoalStack) Resume() bool {
	if s.Previous == nil {
		return false
	}
	s.Top = *s.Previous
	s.Previous = nil
	return true
}

// Replace discards the whole stack in favour of goal.
func (s *GoalStack) Replace(goal AgentGoal) {
	s.Top = goal
	s.Previous = nil
}

// Update rewrites the active goal's details without touching the stack.
func (s *GoalStack) Update(details GoalDetails) {
	s.Top.Details = details
}

func (s GoalStack) Clone() GoalStack {
	out := GoalStack{Top: s.Top}
	if s.Previous != nil {
		prev := *s.Previous
		out.Previous = &prev
	}
	return out
}
