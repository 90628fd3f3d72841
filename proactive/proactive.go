// Package proactive decides what the agent does when the conversation has
// stalled or a follow-up timer fired.
package proactive

import (
	"context"

	"github.com/tbxark/salesagent/types"
)

type Request struct {
	State               *types.ConversationState
	Reason              types.ProactiveReason
	FollowUpAttempt     int
	MaxFollowUpAttempts int
}

// Decision is either a direct Action or a SuggestedGoal for a second
// planning pass. SuggestedGoal wins when both are set.
type Decision struct {
	Action        types.ActionType
	Parameters    types.ActionParameters
	SuggestedGoal *types.AgentGoal
}

type Decider interface {
	Decide(ctx context.Context, req *Request) (*Decision, error)
}

// Exhausted reports whether the follow-up budget is spent.
func (r *Request) Exhausted() bool {
	return r.Reason == types.ProactiveFollowUpTimeout && r.FollowUpAttempt >= r.MaxFollowUpAttempts
}

func farewell() *Decision {
	return &Decision{
		Action:     types.ActionGenerateFarewell,
		Parameters: types.ActionParameters{Reason: types.EndingReasonFollowUp},
	}
}

func followUp(req *Request) *Decision {
	return &Decision{
		Action: types.ActionSendFollowUpMessage,
		Parameters: types.ActionParameters{
			FollowUpAttempt:  req.FollowUpAttempt + 1,
			InterruptedTopic: req.State.Goals.Top.Type.Label(),
		},
	}
}

func reengage(req *Request) *Decision {
	return &Decision{
		Action:     types.ActionAskReengagementQuestion,
		Parameters: types.ActionParameters{InterruptedTopic: req.State.Goals.Top.Type.Label()},
	}
}

// LocalDecider applies fixed rules.
type LocalDecider struct{}

func NewLocalDecider() *LocalDecider {
	return &LocalDecider{}
}

func (d *LocalDecider) Decide(ctx context.Context, req *Request) (*Decision, error) {
	if req.Exhausted() {
		return farewell(), nil
	}
	if req.Reason == types.ProactiveFollowUpTimeout {
		return followUp(req), nil
	}
	state := req.State
	switch state.Goals.Top.Type {
	case types.GoalInvestigatingNeeds:
		if _, ok := state.Profile.PriorityNeed(); ok {
			goal := types.NewGoal(types.GoalPresentingSolution)
			return &Decision{SuggestedGoal: &goal}, nil
		}
	case types.GoalPresentingSolution:
		if state.ActiveProposal != nil && !state.Profile.HasOpenObjections() {
			goal := types.AgentGoal{
				Type:    types.GoalAttemptingClose,
				Details: types.GoalDetails{ClosingStep: types.ClosingStepInitialAttempt},
			}
			return &Decision{SuggestedGoal: &goal}, nil
		}
	}
	return reengage(req), nil
}

// FailbackDecider tries each decider in order.
type FailbackDecider struct {
	deciders []Decider
}

func NewFailbackDecider(deciders ...Decider) *FailbackDecider {
	return &FailbackDecider{deciders: deciders}
}

func (f *FailbackDecider) Decide(ctx context.Context, req *Request) (*Decision, error) {
	var lastErr error
	for _, d := range f.deciders {
		decision, err := d.Decide(ctx, req)
		if err == nil && decision != nil {
			return decision, nil
		}
		lastErr = err
	}
	if req.Exhausted() {
		return farewell(), nil
	}
	return nil, lastErr
}
