package testcases

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tbxark/salesagent/agent"
	"github.com/tbxark/salesagent/internal/fakemodel"
	"github.com/tbxark/salesagent/proactive"
	"github.com/tbxark/salesagent/types"
)

func deliveryQuestion() *types.TurnAnalysis {
	return &types.TurnAnalysis{
		Intent:               types.IntentQuestioning,
		Questions:            []types.ExtractedQuestion{{CoreText: "qual o prazo de entrega", Repetition: types.RepetitionNone}},
		ResponseToLastAction: types.ResponseIgnored,
	}
}

// TestSale_ClosingInterruptedByQuestion answers a question asked right after
// the closing attempt and then asks for the decision again.
func TestSale_ClosingInterruptedByQuestion(t *testing.T) {
	t.Parallel()
	needs := answered(types.IntentNeedOrPain)
	needs.Needs = []string{"controle de estoque"}
	conv := NewConversation(t, NewScriptedUnderstander(map[string]*types.TurnAnalysis{
		"Vendo roupas pela internet":         answered(types.IntentStatingInfo),
		"Perco vendas porque o estoque some": needs,
		"Isso atrasa as entregas":            answered(types.IntentStatingInfo),
		"Os clientes reclamam bastante":      answered(types.IntentStatingInfo),
		"Seria ótimo ter tudo sob controle":  answered(types.IntentPositiveFeedback),
		"Quero fechar":                       answered(types.IntentRequestNextStep),
		"Qual o prazo de entrega?":           deliveryQuestion(),
		"Sim, pode seguir":                   answered(types.IntentPositiveFeedback),
	}))
	for _, text := range []string{"Oi", "Vendo roupas pela internet", "Perco vendas porque o estoque some", "Isso atrasa as entregas", "Os clientes reclamam bastante", "Seria ótimo ter tudo sob controle"} {
		conv.Say(text)
	}

	resp := conv.Say("Quero fechar")
	require.Equal(t, types.ActionInitiateClosing, resp.Action.Type)
	assert.Equal(t, types.ClosingAttemptMade, resp.State.ClosingStatus)

	resp = conv.Say("Qual o prazo de entrega?")
	require.NotNil(t, resp.Action)
	assert.Equal(t, types.ActionAnswerDirectQuestion, resp.Action.Type)
	require.NotNil(t, resp.State.Goals.Previous)
	assert.Equal(t, types.GoalAttemptingClose, resp.State.Goals.Previous.Type)
	assert.Equal(t, types.ClosingAttemptMade, resp.State.ClosingStatus)

	// Resuming the closing goal takes one cycle.
	resp = conv.Say("Sim, pode seguir")
	assert.Nil(t, resp.Action)
	assert.Equal(t, types.GoalAttemptingClose, resp.State.Goals.Top.Type)
	assert.Nil(t, resp.State.Goals.Previous)

	resp = conv.Say("Sim, pode seguir")
	require.NotNil(t, resp.Action)
	assert.Equal(t, types.ActionInitiateClosing, resp.Action.Type)
	assert.Equal(t, "Plano Estoque", resp.Action.Parameters.ProductName)

	resp = conv.Say("Sim, pode seguir")
	require.NotNil(t, resp.Action)
	assert.Equal(t, types.ActionConfirmOrderDetails, resp.Action.Type)
	assert.Equal(t, types.ClosingAwaitingConfirmation, resp.State.ClosingStatus)
}

// TestSale_RebuttalInterruptedByQuestion comes back to an objection after
// answering a question asked in the middle of the rebuttal.
func TestSale_RebuttalInterruptedByQuestion(t *testing.T) {
	t.Parallel()
	conv := NewConversation(t, NewScriptedUnderstander(map[string]*types.TurnAnalysis{
		"Vendo roupas": answered(types.IntentStatingInfo),
		"Achei caro": {
			Intent:               types.IntentObjection,
			Objections:           []string{"preço muito alto"},
			ResponseToLastAction: types.ResponsePartiallyAnswered,
		},
		"Qual o prazo de entrega?": deliveryQuestion(),
		"Ok":                       {Intent: types.IntentStatingInfo, ResponseToLastAction: types.ResponseAcknowledged},
		"Faz sentido":              answered(types.IntentPositiveFeedback),
	}))
	conv.Say("Oi")
	conv.Say("Vendo roupas")

	resp := conv.Say("Achei caro")
	require.Equal(t, types.ActionGenerateRebuttal, resp.Action.Type)

	resp = conv.Say("Qual o prazo de entrega?")
	require.Equal(t, types.ActionAnswerDirectQuestion, resp.Action.Type)
	assert.Equal(t, types.GoalClarifyingInput, resp.State.Goals.Top.Type)
	assert.Equal(t, types.GoalInvestigatingNeeds, resp.State.Goals.Previous.Type)
	require.Len(t, resp.State.InterruptionQueue, 1)
	assert.Equal(t, types.InterruptionObjection, resp.State.InterruptionQueue[0].Kind)
	assert.Equal(t, "preço muito alto", resp.State.InterruptionQueue[0].Text)

	resp = conv.Say("Ok")
	require.NotNil(t, resp.Action)
	assert.Equal(t, types.ActionGenerateRebuttal, resp.Action.Type)
	assert.Equal(t, 2, resp.Action.Parameters.AttemptNumber)
	assert.Equal(t, types.GoalHandlingObjection, resp.State.Goals.Top.Type)
	assert.Equal(t, types.GoalInvestigatingNeeds, resp.State.Goals.Previous.Type)
	assert.Empty(t, resp.State.InterruptionQueue)

	resp = conv.Say("Faz sentido")
	assert.Equal(t, types.ObjectionResolved, resp.State.Profile.Objections[0].Status)
	assert.False(t, resp.State.Profile.HasOpenObjections())
	assert.Equal(t, types.GoalInvestigatingNeeds, resp.State.Goals.Top.Type)
	assert.Nil(t, resp.State.Goals.Previous)
}

type reengagingDecider struct{}

func (reengagingDecider) Decide(ctx context.Context, req *proactive.Request) (*proactive.Decision, error) {
	return &proactive.Decision{
		Action:     types.ActionAskReengagementQuestion,
		Parameters: types.ActionParameters{InterruptedTopic: req.State.Goals.Top.Type.Label()},
	}, nil
}

// TestSale_FollowUpExhaustedWhenDeciderReengages spends the follow-up budget
// even when the decider never picks a follow-up message.
func TestSale_FollowUpExhaustedWhenDeciderReengages(t *testing.T) {
	t.Parallel()
	reengage := map[string]any{"decision": "action", "action": string(types.ActionAskReengagementQuestion)}
	tests := []struct {
		name    string
		decider func(t *testing.T) proactive.Decider
		want    types.ActionType
	}{
		{"custom decider", func(t *testing.T) proactive.Decider { return reengagingDecider{} }, types.ActionAskReengagementQuestion},
		{"tool-based decider", func(t *testing.T) proactive.Decider {
			d, err := proactive.NewToolBasedDecider(fakemodel.New(fakemodel.ToolCall("decide_proactive_step", reengage)))
			require.NoError(t, err)
			return d
		}, types.ActionSendFollowUpMessage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := agent.NewLocalCollaborators(Config())
			c.Decider = tt.decider(t)
			conv := NewConversationWith(t, c)
			conv.Say("Oi")

			maxAttempts := Config().Engine.MaxFollowUpAttempts
			for i := 1; i <= maxAttempts; i++ {
				resp := conv.Timeout()
				require.NotNil(t, resp.Action)
				assert.Equal(t, tt.want, resp.Action.Type)
				assert.Equal(t, i, resp.State.FollowUp.AttemptCount)
				assert.Equal(t, i, resp.Action.AttemptCount)
				assert.True(t, resp.State.FollowUp.Scheduled)
			}

			resp := conv.Timeout()
			require.NotNil(t, resp.Action)
			assert.Equal(t, types.ActionGenerateFarewell, resp.Action.Type)
			assert.Equal(t, types.EndingReasonFollowUp, resp.State.Goals.Top.Details.Reason)
			assert.False(t, resp.State.FollowUp.Scheduled)

			resp = conv.Timeout()
			assert.Equal(t, "follow_up_not_scheduled", resp.Metadata["skipped"])
		})
	}
}
