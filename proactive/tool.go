package proactive

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/tbxark/salesagent/structured"
	"github.com/tbxark/salesagent/types"
)

const (
	decideStepToolName        = "decide_proactive_step"
	decideStepToolDescription = "Choose how the sales assistant re-engages a customer who stopped moving the conversation forward."
)

// DefaultDecideSystemPromptTemplate is the system prompt used by
// ToolBasedDecider. The template may contain a single "%s" placeholder for
// the tool name.
const DefaultDecideSystemPromptTemplate = `
You steer a consultative sales conversation that has stalled. Either pick a direct action or suggest a new goal for the assistant.

Direct actions:
- SEND_FOLLOW_UP_MESSAGE: a short, friendly nudge after the customer went silent.
- ASK_REENGAGEMENT_QUESTION: an open question that invites the customer back into the topic.
- GENERATE_FAREWELL: close politely when the customer is clearly not interested.

Goals:
- INVESTIGATING_NEEDS: keep discovering the customer's situation and needs.
- PRESENTING_SOLUTION: enough is known to present an offering.
- ATTEMPTING_CLOSE: an offering was presented and accepted in principle.

Prefer a goal only when the customer profile clearly supports it.

Call the '%s' tool with the result.
`

type decisionOutput struct {
	Decision string           `json:"decision" jsonschema:"required,enum=action,enum=goal,description=Whether to take a direct action or suggest a goal"`
	Action   types.ActionType `json:"action,omitempty" jsonschema:"enum=SEND_FOLLOW_UP_MESSAGE,enum=ASK_REENGAGEMENT_QUESTION,enum=GENERATE_FAREWELL,description=The direct action when decision is action"`
	Goal     types.GoalType   `json:"goal,omitempty" jsonschema:"enum=INVESTIGATING_NEEDS,enum=PRESENTING_SOLUTION,enum=ATTEMPTING_CLOSE,description=The suggested goal when decision is goal"`
	Message  string           `json:"message,omitempty" jsonschema:"description=Optional hint for the wording of the action"`
}

func validateDecision(out *decisionOutput) error {
	switch out.Decision {
	case "action":
		switch out.Action {
		case types.ActionSendFollowUpMessage, types.ActionAskReengagementQuestion, types.ActionGenerateFarewell:
			return nil
		}
		return fmt.Errorf("unsupported action %q", out.Action)
	case "goal":
		switch out.Goal {
		case types.GoalInvestigatingNeeds, types.GoalPresentingSolution, types.GoalAttemptingClose:
			return nil
		}
		return fmt.Errorf("unsupported goal %q", out.Goal)
	default:
		return errors.New("decision must be action or goal")
	}
}

type ToolBasedDecider struct {
	chain *structured.Chain[*Request, decisionOutput]
}

func NewToolBasedDecider(chatModel model.ToolCallingChatModel) (*ToolBasedDecider, error) {
	systemPrompt := fmt.Sprintf(DefaultDecideSystemPromptTemplate, decideStepToolName)
	chain, err := structured.NewChain[*Request, decisionOutput](
		chatModel,
		func(ctx context.Context, req *Request) ([]*schema.Message, error) {
			return []*schema.Message{
				schema.SystemMessage(systemPrompt),
				schema.UserMessage(formatRequest(req)),
			}, nil
		},
		decideStepToolName,
		decideStepToolDescription,
		validateDecision,
	)
	if err != nil {
		return nil, err
	}
	return &ToolBasedDecider{chain: chain}, nil
}

func formatRequest(req *Request) string {
	trigger := fmt.Sprintf("# Trigger:\n%s", req.Reason)
	if req.Reason == types.ProactiveFollowUpTimeout {
		trigger += fmt.Sprintf("\nfollow-up attempt %d of %d", req.FollowUpAttempt+1, req.MaxFollowUpAttempts)
	}
	return types.FormatState(req.State) + "\n\n" + trigger
}

func (d *ToolBasedDecider) Decide(ctx context.Context, req *Request) (*Decision, error) {
	if req.Exhausted() {
		return farewell(), nil
	}
	out, err := d.chain.Invoke(ctx, req)
	if err != nil {
		return nil, err
	}
	if req.Reason == types.ProactiveFollowUpTimeout {
		return timeoutDecision(req, out), nil
	}
	if out.Decision == "goal" {
		goal := types.NewGoal(out.Goal)
		if goal.Type == types.GoalAttemptingClose {
			goal.Details.ClosingStep = types.ClosingStepInitialAttempt
		}
		return &Decision{SuggestedGoal: &goal}, nil
	}
	var decision *Decision
	switch out.Action {
	case types.ActionSendFollowUpMessage:
		decision = followUp(req)
	case types.ActionGenerateFarewell:
		decision = farewell()
		decision.Parameters.Reason = string(req.Reason)
	default:
		decision = reengage(req)
	}
	decision.Parameters.Message = out.Message
	return decision, nil
}

// timeoutDecision keeps a timeout on the follow-up budget: the model may only
// pick the wording or end the conversation.
func timeoutDecision(req *Request, out *decisionOutput) *Decision {
	if out.Decision == "action" && out.Action == types.ActionGenerateFarewell {
		return farewell()
	}
	decision := followUp(req)
	decision.Parameters.Message = out.Message
	return decision
}
