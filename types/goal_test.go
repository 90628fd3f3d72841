package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoalStack_InterruptStoresPreviousGoal(t *testing.T) {
	stack := NewGoalStack(NewGoal(GoalPresentingSolution))
	stack.Interrupt(AgentGoal{Type: GoalHandlingObjection, Details: GoalDetails{OriginalObjectionText: "too expensive"}})

	assert.Equal(t, GoalHandlingObjection, stack.Top.Type)
	require.NotNil(t, stack.Previous)
	assert.Equal(t, GoalPresentingSolution, stack.Previous.Type)
	assert.Equal(t, 2, stack.Depth())
}

func TestGoalStack_DepthNeverExceedsTwo(t *testing.T) {
	stack := NewGoalStack(NewGoal(GoalInvestigatingNeeds))
	temporaries := []GoalType{
		GoalHandlingObjection,
		GoalClarifyingInput,
		GoalAcknowledgeAndTransition,
		GoalClarifyingInput,
		GoalHandlingObjection,
	}
	for _, goalType := range temporaries {
		stack.Interrupt(NewGoal(goalType))
		assert.LessOrEqual(t, stack.Depth(), 2)
		require.NotNil(t, stack.Previous)
		assert.Equal(t, GoalInvestigatingNeeds, stack.Previous.Type, "interrupted goal must survive nested interruptions")
	}
}

func TestGoalStack_Resume(t *testing.T) {
	stack := NewGoalStack(AgentGoal{Type: GoalInvestigatingNeeds, Details: GoalDetails{SpinQuestionsAsked: 3}})
	stack.Interrupt(NewGoal(GoalClarifyingInput))

	require.True(t, stack.Resume())
	assert.Equal(t, GoalInvestigatingNeeds, stack.Top.Type)
	assert.Equal(t, 3, stack.Top.Details.SpinQuestionsAsked)
	assert.Nil(t, stack.Previous)
	assert.False(t, stack.Resume())
}

func TestGoalStack_ReplaceClearsPrevious(t *testing.T) {
	stack := NewGoalStack(NewGoal(GoalPresentingSolution))
	stack.Interrupt(NewGoal(GoalHandlingObjection))
	stack.Replace(NewGoal(GoalEndingConversation))

	assert.Equal(t, GoalEndingConversation, stack.Top.Type)
	assert.Nil(t, stack.Previous)
}

func TestGoalStack_CloneIsIndependent(t *testing.T) {
	stack := NewGoalStack(NewGoal(GoalPresentingSolution))
	stack.Interrupt(NewGoal(GoalHandlingObjection))

	clone := stack.Clone()
	clone.Previous.Details.Reason = "changed"

	assert.Empty(t, stack.Previous.Details.Reason)
}

func TestSpinType_Next(t *testing.T) {
	cases := map[SpinType]SpinType{
		"":              SpinSituation,
		SpinSituation:   SpinProblem,
		SpinProblem:     SpinImplication,
		SpinImplication: SpinNeedPayoff,
		SpinNeedPayoff:  SpinProblem,
	}
	for from, want := range cases {
		assert.Equal(t, want, from.Next(), "from %q", from)
	}
}

func TestInterruptionKind_Priority(t *testing.T) {
	assert.Less(t, InterruptionObjection.Priority(), InterruptionQuestion.Priority())
	assert.Less(t, InterruptionQuestion.Priority(), InterruptionVagueStatement.Priority())
	assert.Less(t, InterruptionVagueStatement.Priority(), InterruptionOffTopic.Priority())
}
