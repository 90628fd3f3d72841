package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tbxark/salesagent/dialogue"
	"github.com/tbxark/salesagent/types"
)

type stubRenderer struct {
	text     string
	err      error
	requests []*dialogue.Request
}

func (s *stubRenderer) Render(ctx context.Context, req *dialogue.Request) (string, error) {
	s.requests = append(s.requests, req)
	return s.text, s.err
}

type stubRetriever struct {
	docs    []*schema.Document
	err     error
	queries []string
	options *retriever.Options
}

func (s *stubRetriever) Retrieve(ctx context.Context, query string, opts ...retriever.Option) ([]*schema.Document, error) {
	s.queries = append(s.queries, query)
	s.options = retriever.GetCommonOptions(&retriever.Options{}, opts...)
	return s.docs, s.err
}

type fallbackCounter struct {
	kinds []string
}

func (f *fallbackCounter) RecordFallback(kind string) {
	f.kinds = append(f.kinds, kind)
}

func newDispatcher(t *testing.T, r dialogue.Renderer, opts ...DispatcherOption) *Dispatcher {
	t.Helper()
	d, err := NewDispatcher(r, DispatcherConfig{ChunkLimit: 2, SimilarityThreshold: 0.5, Scope: "acme"}, opts...)
	require.NoError(t, err)
	return d
}

func TestNewDispatcher_RequiresRenderer(t *testing.T) {
	_, err := NewDispatcher(nil, DispatcherConfig{})
	assert.Error(t, err)
}

func TestDispatch_NoActionSkipsRenderer(t *testing.T) {
	renderer := &stubRenderer{text: "unused"}
	d := newDispatcher(t, renderer)

	result := d.Dispatch(context.Background(), &Request{State: types.NewConversationState("c")})

	assert.Nil(t, result)
	assert.Empty(t, renderer.requests)
}

func TestDispatch_RetrievesForFactActions(t *testing.T) {
	renderer := &stubRenderer{text: "  Entregamos em 2 dias.  "}
	ret := &stubRetriever{docs: []*schema.Document{
		{Content: "Entrega em até 2 dias úteis."},
		{Content: "   "},
		{Content: "Frete grátis acima de R$ 200."},
		{Content: "Ignorado pelo limite."},
	}}
	d := newDispatcher(t, renderer, WithRetriever(ret))

	result := d.Dispatch(context.Background(), &Request{
		State:      types.NewConversationState("c"),
		Action:     types.ActionAnswerDirectQuestion,
		Parameters: types.ActionParameters{QuestionText: "prazo de entrega"},
	})

	require.NotNil(t, result)
	assert.Equal(t, []string{"prazo de entrega"}, ret.queries)
	require.NotNil(t, ret.options.TopK)
	assert.Equal(t, 2, *ret.options.TopK)
	require.NotNil(t, ret.options.ScoreThreshold)
	assert.Equal(t, 0.5, *ret.options.ScoreThreshold)
	require.NotNil(t, ret.options.SubIndex)
	assert.Equal(t, "acme", *ret.options.SubIndex)

	assert.Equal(t, "Entrega em até 2 dias úteis.\n\nFrete grátis acima de R$ 200.", result.RetrievedContext)
	assert.Equal(t, result.RetrievedContext, renderer.requests[0].RetrievedContext)
	assert.Equal(t, "Entregamos em 2 dias.", result.Action.RenderedText)
	assert.False(t, result.Fallback)
}

func TestDispatch_NonFactActionSkipsRetrieval(t *testing.T) {
	ret := &stubRetriever{}
	d := newDispatcher(t, &stubRenderer{text: "Olá!"}, WithRetriever(ret))

	result := d.Dispatch(context.Background(), &Request{
		State:  types.NewConversationState("c"),
		Action: types.ActionGenerateGreeting,
	})

	assert.Empty(t, ret.queries)
	assert.Empty(t, result.RetrievedContext)
	assert.Equal(t, "Olá!", result.Action.RenderedText)
}

func TestDispatch_RetrievalFailureUsesMarker(t *testing.T) {
	counter := &fallbackCounter{}
	ret := &stubRetriever{err: errors.New("vector store down")}
	d := newDispatcher(t, &stubRenderer{text: "Entendo."}, WithRetriever(ret), WithFallbackRecorder(counter))

	result := d.Dispatch(context.Background(), &Request{
		State:      types.NewConversationState("c"),
		Action:     types.ActionGenerateRebuttal,
		Parameters: types.ActionParameters{ObjectionText: "preço muito alto"},
	})

	assert.Equal(t, []string{"how to address the objection: preço muito alto"}, ret.queries)
	assert.Equal(t, types.NoSupportingContext, result.RetrievedContext)
	assert.Equal(t, []string{"retrieval"}, counter.kinds)
	assert.Equal(t, "Entendo.", result.Action.RenderedText)
}

func TestDispatch_EmptyRetrievalAndNoRetrieverUseMarker(t *testing.T) {
	req := &Request{
		State:      types.NewConversationState("c"),
		Action:     types.ActionPresentSolutionOffer,
		Parameters: types.ActionParameters{ProductName: "Plano Estoque", KeyBenefit: "controle"},
	}

	withEmpty := newDispatcher(t, &stubRenderer{text: "ok"}, WithRetriever(&stubRetriever{}))
	assert.Equal(t, types.NoSupportingContext, withEmpty.Dispatch(context.Background(), req).RetrievedContext)

	without := newDispatcher(t, &stubRenderer{text: "ok"})
	assert.Equal(t, types.NoSupportingContext, without.Dispatch(context.Background(), req).RetrievedContext)
}

func TestDispatch_RenderFailureFallsBack(t *testing.T) {
	tests := []struct {
		name     string
		renderer *stubRenderer
		action   types.ActionType
		want     string
	}{
		{"error", &stubRenderer{err: errors.New("timeout")}, types.ActionAskSpinQuestion, DefaultFallbackMessage},
		{"empty", &stubRenderer{text: "  \n"}, types.ActionAskSpinQuestion, DefaultFallbackMessage},
		{"apology", &stubRenderer{err: errors.New("timeout")}, types.ActionApologizeFallback, DefaultApologyMessage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			counter := &fallbackCounter{}
			d := newDispatcher(t, tt.renderer, WithFallbackRecorder(counter))

			result := d.Dispatch(context.Background(), &Request{State: types.NewConversationState("c"), Action: tt.action})

			require.NotNil(t, result)
			assert.True(t, result.Fallback)
			assert.Equal(t, tt.want, result.Action.RenderedText)
			assert.Equal(t, tt.action, result.Action.Type)
			assert.Equal(t, []string{"render"}, counter.kinds)
		})
	}
}

func TestDispatch_ConfiguredMessagesAndIdentity(t *testing.T) {
	renderer := &stubRenderer{err: errors.New("boom")}
	d, err := NewDispatcher(renderer, DispatcherConfig{
		FallbackMessage: "Um momento, por favor.",
		AgentName:       "Ana",
		CompanyName:     "Loja X",
	})
	require.NoError(t, err)

	result := d.Dispatch(context.Background(), &Request{State: types.NewConversationState("c"), Action: types.ActionGenerateGreeting})

	assert.Equal(t, "Um momento, por favor.", result.Action.RenderedText)
	assert.Equal(t, "Ana", renderer.requests[0].AgentName)
	assert.Equal(t, "Loja X", renderer.requests[0].CompanyName)
}

func TestQuery(t *testing.T) {
	assert.Equal(t, "prazo", Query(types.ActionAnswerDirectQuestion, types.ActionParameters{QuestionText: "prazo"}))
	assert.Equal(t, "how to address the objection: caro", Query(types.ActionGenerateRebuttal, types.ActionParameters{ObjectionText: "caro"}))
	assert.Equal(t, "Plano X rápido", Query(types.ActionPresentSolutionOffer, types.ActionParameters{ProductName: "Plano X", KeyBenefit: "rápido"}))
	assert.Empty(t, Query(types.ActionGenerateGreeting, types.ActionParameters{}))
}

var fixedNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func newFinalizer(t *testing.T) *Finalizer {
	t.Helper()
	f, err := NewFinalizer(30*time.Minute, WithClock(func() time.Time { return fixedNow }))
	require.NoError(t, err)
	return f
}

func resultFor(action types.ActionType, params types.ActionParameters, text string) *Result {
	return &Result{
		Action:           &types.AgentAction{Type: action, Parameters: params, RenderedText: text},
		RetrievedContext: "Entrega em 2 dias.",
	}
}

func TestNewFinalizer_Validation(t *testing.T) {
	_, err := NewFinalizer(0)
	assert.Error(t, err)
	_, err = NewFinalizer(-time.Minute)
	assert.Error(t, err)
}

func TestFinalize_ReturnsHistoryAndRecordsAction(t *testing.T) {
	f := newFinalizer(t)
	state := types.NewConversationState("c")
	state.TurnNumber = 4
	state.Scratch = types.TurnScratch{Trigger: types.TriggerCustomerMessage, PlannedAction: types.ActionGenerateGreeting}

	delta, messages := f.Finalize(context.Background(), &FinalizeRequest{
		Before:       types.NewConversationState("c"),
		State:        state,
		CustomerText: "Oi",
		Result:       resultFor(types.ActionGenerateGreeting, types.ActionParameters{}, "Olá!"),
	})

	require.Len(t, messages, 2)
	assert.Equal(t, schema.User, messages[0].Role)
	assert.Equal(t, "Oi", messages[0].Content)
	assert.Equal(t, schema.Assistant, messages[1].Role)
	assert.Equal(t, "Olá!", messages[1].Content)

	require.NotNil(t, delta.LastAgentAction)
	assert.Equal(t, types.ActionGenerateGreeting, delta.LastAgentAction.Type)
	assert.Equal(t, "Olá!", delta.LastAgentAction.RenderedText)
	assert.Equal(t, 4, delta.LastAgentAction.Turn)
	assert.Equal(t, 1, delta.LastAgentAction.AttemptCount)

	require.NotNil(t, delta.Scratch)
	assert.True(t, delta.Scratch.Empty())
	assert.True(t, delta.Applied(state).Scratch.Empty())
}

func TestFinalize_RepeatedActionCountsAttempts(t *testing.T) {
	f := newFinalizer(t)
	state := types.NewConversationState("c")
	state.LastAgentAction = &types.AgentAction{Type: types.ActionAskClarifyingQuestion, AttemptCount: 2}

	delta, _ := f.Finalize(context.Background(), &FinalizeRequest{
		State:  state,
		Result: resultFor(types.ActionAskClarifyingQuestion, types.ActionParameters{}, "Pode explicar?"),
	})
	assert.Equal(t, 3, delta.LastAgentAction.AttemptCount)
}

func TestFinalize_RebuttalBumpsObjection(t *testing.T) {
	f := newFinalizer(t)
	state := types.NewConversationState("c")
	state.Profile.Objections = []types.ObjectionEntry{
		{Text: "preço muito alto", Status: types.ObjectionActive, Attempts: 1, SourceTurn: 2},
	}

	delta, _ := f.Finalize(context.Background(), &FinalizeRequest{
		State:  state,
		Result: resultFor(types.ActionGenerateRebuttal, types.ActionParameters{ObjectionText: "preço muito alto", AttemptNumber: 2}, "Entendo."),
	})

	require.NotNil(t, delta.Profile)
	obj := delta.Profile.Objections[0]
	assert.Equal(t, types.ObjectionAddressing, obj.Status)
	assert.Equal(t, 2, obj.Attempts)
	assert.Equal(t, 2, delta.LastAgentAction.AttemptCount)
	assert.Equal(t, 1, state.Profile.Objections[0].Attempts, "input state must not be mutated")
}

func TestFinalize_RebuttalForUnknownObjectionOnlyRecords(t *testing.T) {
	f := newFinalizer(t)
	delta, _ := f.Finalize(context.Background(), &FinalizeRequest{
		State:  types.NewConversationState("c"),
		Result: resultFor(types.ActionGenerateRebuttal, types.ActionParameters{ObjectionText: "sumiu"}, "Entendo."),
	})
	assert.Nil(t, delta.Profile)
	assert.NotNil(t, delta.LastAgentAction)
}

func TestFinalize_InitiateClosingMarksAttempt(t *testing.T) {
	f := newFinalizer(t)
	delta, _ := f.Finalize(context.Background(), &FinalizeRequest{
		State:  types.NewConversationState("c"),
		Result: resultFor(types.ActionInitiateClosing, types.ActionParameters{ProductName: "Plano"}, "Vamos fechar?"),
	})
	require.NotNil(t, delta.ClosingStatus)
	assert.Equal(t, types.ClosingAttemptMade, *delta.ClosingStatus)
}

func TestFinalize_MarksAnsweredQuestions(t *testing.T) {
	tests := []struct {
		name    string
		status  types.QuestionStatus
		context string
		render  bool
		want    types.QuestionStatus
	}{
		{"answered", types.QuestionNewlyAsked, "Entrega em 2 dias.", false, types.QuestionAnsweredOK},
		{"no context", types.QuestionNewlyAsked, types.NoSupportingContext, false, types.QuestionAnsweredWithFallback},
		{"render fallback", types.QuestionNewlyAsked, "Entrega em 2 dias.", true, types.QuestionAnsweredWithFallback},
		{"repeat answered", types.QuestionRepetitionAfterFallback, "Entrega em 2 dias.", false, types.QuestionRepetitionAfterOK},
		{"repeat fallback", types.QuestionRepetitionAfterOK, types.NoSupportingContext, false, types.QuestionRepetitionAfterFallback},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFinalizer(t)
			state := types.NewConversationState("c")
			state.QuestionLog = []types.QuestionEntry{
				{CoreText: "prazo de entrega", TurnAsked: 1, Status: types.QuestionAnsweredOK, Attempts: 1},
				{CoreText: "prazo de entrega", TurnAsked: 3, Status: tt.status, Attempts: 1},
			}
			result := resultFor(types.ActionAnswerDirectQuestion, types.ActionParameters{QuestionText: "Prazo de entrega"}, "Resposta")
			result.RetrievedContext = tt.context
			result.Fallback = tt.render

			delta, _ := f.Finalize(context.Background(), &FinalizeRequest{State: state, Result: result})

			require.NotNil(t, delta.QuestionLog)
			log := *delta.QuestionLog
			assert.Equal(t, types.QuestionAnsweredOK, log[0].Status, "only the most recent entry is updated")
			assert.Equal(t, tt.want, log[1].Status)
			assert.Equal(t, tt.status, state.QuestionLog[1].Status)
		})
	}
}

func TestFinalize_FollowUpScheduling(t *testing.T) {
	due := fixedNow.Add(30 * time.Minute)

	t.Run("schedules after open action", func(t *testing.T) {
		f := newFinalizer(t)
		state := types.NewConversationState("c")
		delta, _ := f.Finalize(context.Background(), &FinalizeRequest{
			State:  state,
			Result: resultFor(types.ActionAskSpinQuestion, types.ActionParameters{SpinType: types.SpinProblem}, "Qual a dificuldade?"),
		})
		require.NotNil(t, delta.FollowUp)
		assert.True(t, delta.FollowUp.Scheduled)
		assert.Equal(t, due, *delta.FollowUp.DueAt)
		assert.Equal(t, 0, delta.FollowUp.AttemptCount)
	})

	t.Run("counts follow-up attempts", func(t *testing.T) {
		f := newFinalizer(t)
		state := types.NewConversationState("c")
		state.FollowUp = types.FollowUp{Scheduled: true, AttemptCount: 1}
		delta, _ := f.Finalize(context.Background(), &FinalizeRequest{
			State:  state,
			Result: resultFor(types.ActionSendFollowUpMessage, types.ActionParameters{FollowUpAttempt: 2}, "Ainda por aí?"),
		})
		assert.Equal(t, 2, delta.FollowUp.AttemptCount)
		assert.Equal(t, 2, delta.LastAgentAction.AttemptCount)
		assert.True(t, delta.FollowUp.Scheduled)
	})

	t.Run("any action on a timeout spends an attempt", func(t *testing.T) {
		f := newFinalizer(t)
		state := types.NewConversationState("c")
		state.FollowUp = types.FollowUp{Scheduled: true, AttemptCount: 1}
		state.Scratch.Trigger = types.TriggerFollowUpTimeout
		delta, _ := f.Finalize(context.Background(), &FinalizeRequest{
			State:  state,
			Result: resultFor(types.ActionAskReengagementQuestion, types.ActionParameters{}, "Posso ajudar em algo mais?"),
		})
		assert.Equal(t, 2, delta.FollowUp.AttemptCount)
		assert.Equal(t, 2, delta.LastAgentAction.AttemptCount)
		assert.True(t, delta.FollowUp.Scheduled)
	})

	t.Run("customer turn does not spend an attempt", func(t *testing.T) {
		f := newFinalizer(t)
		state := types.NewConversationState("c")
		state.Scratch.Trigger = types.TriggerCustomerMessage
		delta, _ := f.Finalize(context.Background(), &FinalizeRequest{
			State:  state,
			Result: resultFor(types.ActionAskReengagementQuestion, types.ActionParameters{}, "Posso ajudar em algo mais?"),
		})
		assert.Equal(t, 0, delta.FollowUp.AttemptCount)
	})

	t.Run("waiting turn keeps the timer", func(t *testing.T) {
		f := newFinalizer(t)
		state := types.NewConversationState("c")
		state.Goals = types.NewGoalStack(types.NewGoal(types.GoalPresentingSolution))
		delta, _ := f.Finalize(context.Background(), &FinalizeRequest{State: state, CustomerText: "hum"})
		assert.Nil(t, delta.LastAgentAction)
		assert.True(t, delta.FollowUp.Scheduled)
	})

	t.Run("farewell unschedules", func(t *testing.T) {
		f := newFinalizer(t)
		state := types.NewConversationState("c")
		state.FollowUp = types.FollowUp{Scheduled: true, AttemptCount: 2, DueAt: &due}
		state.Goals = types.NewGoalStack(types.NewGoal(types.GoalEndingConversation))
		delta, _ := f.Finalize(context.Background(), &FinalizeRequest{
			State:  state,
			Result: resultFor(types.ActionGenerateFarewell, types.ActionParameters{}, "Até logo!"),
		})
		assert.False(t, delta.FollowUp.Scheduled)
		assert.Nil(t, delta.FollowUp.DueAt)
		assert.Equal(t, 2, delta.FollowUp.AttemptCount)
	})

	t.Run("impasse acknowledgement still schedules the farewell", func(t *testing.T) {
		f := newFinalizer(t)
		state := types.NewConversationState("c")
		state.Goals = types.NewGoalStack(types.NewGoal(types.GoalEndingConversation))
		delta, _ := f.Finalize(context.Background(), &FinalizeRequest{
			State:  state,
			Result: resultFor(types.ActionAcknowledgeAndTransition, types.ActionParameters{Reason: types.EndingReasonImpasse}, "Respeito."),
		})
		assert.True(t, delta.FollowUp.Scheduled)
	})

	t.Run("ended conversation stays quiet", func(t *testing.T) {
		f := newFinalizer(t)
		state := types.NewConversationState("c")
		state.Goals = types.NewGoalStack(types.NewGoal(types.GoalEndingConversation))
		delta, _ := f.Finalize(context.Background(), &FinalizeRequest{State: state, CustomerText: "ok"})
		assert.False(t, delta.FollowUp.Scheduled)
	})
}

func TestFinalize_WaitingTurnKeepsCustomerMessage(t *testing.T) {
	f := newFinalizer(t)
	_, messages := f.Finalize(context.Background(), &FinalizeRequest{
		State:        types.NewConversationState("c"),
		CustomerText: "Oi",
	})
	require.Len(t, messages, 1)
	assert.Equal(t, schema.User, messages[0].Role)
}

func TestKeywordRetriever(t *testing.T) {
	docs := DocumentsFromOfferings([]types.Offering{
		{Name: "Plano Básico", Description: "Catálogo online", Benefits: []string{"Começa em minutos"}, Price: 49.9, PriceInfo: "por mês"},
		{Name: "Plano Estoque", Description: "Controle de estoque integrado", Keywords: []string{"inventário"}},
	})
	require.Len(t, docs, 2)
	assert.Contains(t, docs[0].Content, "Plano Básico: Catálogo online")
	assert.Contains(t, docs[0].Content, "- Começa em minutos")
	assert.Contains(t, docs[0].Content, "Price: 49.90 por mês")
	assert.Equal(t, "Plano Estoque", docs[1].MetaData["offering"])

	scoped := &schema.Document{ID: "other", Content: "Estoque de outra conta", MetaData: map[string]any{MetaScope: "other"}}
	r := NewKeywordRetriever(append(docs, scoped)...)
	ctx := context.Background()

	hits, err := r.Retrieve(ctx, "controle de estoque", retriever.WithSubIndex("acme"))
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "offering-1", hits[0].ID)
	assert.Equal(t, 1.0, hits[0].Score())

	hits, err = r.Retrieve(ctx, "estoque")
	require.NoError(t, err)
	assert.Len(t, hits, 2)

	hits, err = r.Retrieve(ctx, "estoque", retriever.WithTopK(1))
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	hits, err = r.Retrieve(ctx, "controle catálogo", retriever.WithScoreThreshold(0.6))
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = r.Retrieve(ctx, "de a o")
	require.NoError(t, err)
	assert.Empty(t, hits)
}
