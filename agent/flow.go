package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/schema"
	"github.com/tbxark/salesagent/analyzer"
	"github.com/tbxark/salesagent/dispatch"
	"github.com/tbxark/salesagent/patch"
	"github.com/tbxark/salesagent/planner"
	"github.com/tbxark/salesagent/types"
	"github.com/tbxark/salesagent/updater"
)

var (
	// ErrMissingDependency is returned by NewFlow when a required
	// collaborator is nil.
	ErrMissingDependency = errors.New("missing dependency")
	// ErrConversationStarted is returned when seeding a conversation that
	// already had a turn.
	ErrConversationStarted = errors.New("conversation already started")
)

// TurnRecorder receives per-turn analytics.
type TurnRecorder interface {
	RecordTurn(trigger string, d time.Duration)
	RecordFallback(kind string)
}

// Dependencies are the components a Flow runs per turn. Every field is
// required.
type Dependencies struct {
	Analyzer   *analyzer.Analyzer
	Updater    *updater.Updater
	Planner    *planner.Planner
	Dispatcher *dispatch.Dispatcher
	Finalizer  *dispatch.Finalizer
	States     StateReadWriter
	History    HistoryReadWriter
}

func (d Dependencies) validate() error {
	var missing []string
	if d.Analyzer == nil {
		missing = append(missing, "analyzer")
	}
	if d.Updater == nil {
		missing = append(missing, "updater")
	}
	if d.Planner == nil {
		missing = append(missing, "planner")
	}
	if d.Dispatcher == nil {
		missing = append(missing, "dispatcher")
	}
	if d.Finalizer == nil {
		missing = append(missing, "finalizer")
	}
	if d.States == nil {
		missing = append(missing, "state store")
	}
	if d.History == nil {
		missing = append(missing, "history store")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingDependency, strings.Join(missing, ", "))
	}
	return nil
}

type FlowOption func(*Flow)

func WithFollowUpIndex(index FollowUpIndex) FlowOption {
	return func(f *Flow) {
		if index != nil {
			f.followUps = index
		}
	}
}

// WithLocker replaces the in-process turn lock, e.g. with a RedisLocker when
// several engine instances share the stores.
func WithLocker(locker Locker) FlowOption {
	return func(f *Flow) {
		if locker != nil {
			f.locks = locker
		}
	}
}

func WithTurnRecorder(recorder TurnRecorder) FlowOption {
	return func(f *Flow) {
		f.recorder = recorder
	}
}

func WithFlowLogger(logger *slog.Logger) FlowOption {
	return func(f *Flow) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// Flow runs the turn pipeline: analyze, update, plan, dispatch, finalize.
// Turns of the same conversation never overlap.
type Flow struct {
	deps      Dependencies
	followUps FollowUpIndex
	recorder  TurnRecorder
	logger    *slog.Logger
	locks     Locker
}

func NewFlow(deps Dependencies, opts ...FlowOption) (*Flow, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	f := &Flow{
		deps:      deps,
		followUps: NewMemoryFollowUpIndex(),
		logger:    slog.Default(),
		locks:     newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Invoke runs one turn. Collaborator failures degrade to fallback messages;
// only store failures are returned.
func (f *Flow) Invoke(ctx context.Context, input *Request) (*Response, error) {
	ctx = callbacks.EnsureRunInfo(ctx, "SalesAgent", "Agent")
	ctx = callbacks.OnStart(ctx, map[string]any{
		"conversation_id": input.ConversationID,
		"input":           input.UserInput,
		"trigger":         string(input.Trigger),
	})

	response, err := f.invoke(ctx, input)
	if err != nil {
		callbacks.OnError(ctx, err)
		return nil, err
	}

	callbacks.OnEnd(ctx, map[string]any{
		"response": response,
		"message":  response.Message,
	})
	return response, nil
}

func (f *Flow) invoke(ctx context.Context, input *Request) (*Response, error) {
	if input == nil || input.ConversationID == "" {
		return nil, ErrNoConversationID
	}
	trigger := input.Trigger
	if trigger == "" {
		trigger = types.TriggerCustomerMessage
	}
	unlock, err := f.locks.Lock(ctx, input.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("lock conversation: %w", err)
	}
	defer unlock()

	ctx = WithConversationID(ctx, input.ConversationID)
	start := time.Now()

	before, err := f.deps.States.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	if trigger == types.TriggerFollowUpTimeout {
		if skip := followUpSkipReason(before, input.FiredAt); skip != "" {
			f.logger.Debug("follow-up timeout skipped", "conversation_id", input.ConversationID, "reason", skip)
			return &Response{State: before, Metadata: map[string]string{"skipped": skip}}, nil
		}
	}
	history, err := f.deps.History.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	t := &turn{Flow: f, ctx: ctx, before: before, trigger: trigger, metadata: map[string]string{}}
	if trigger == types.TriggerCustomerMessage {
		t.customerText = strings.TrimSpace(input.UserInput)
		t.analyze(history)
	}
	t.update()
	t.plan()

	slog.Debug("Dispatching action", "conversation_id", input.ConversationID, "action", t.action, "params", t.params)
	result := f.deps.Dispatcher.Dispatch(ctx, &dispatch.Request{
		State:      t.working,
		Action:     t.action,
		Parameters: t.params,
		History:    history,
	})
	if result != nil {
		t.working.Scratch.RetrievedContext = result.RetrievedContext
		t.working.Scratch.RawGeneration = result.RawGeneration
	}

	finalDelta, messages := f.deps.Finalizer.Finalize(ctx, &dispatch.FinalizeRequest{
		Before:       before,
		State:        t.working,
		CustomerText: t.customerText,
		Result:       result,
	})
	t.delta.Merge(finalDelta)
	committed := t.delta.Applied(before)

	if err := f.deps.States.Save(ctx, committed); err != nil {
		return nil, fmt.Errorf("save state: %w", err)
	}
	if len(messages) > 0 {
		if _, err := f.deps.History.Append(ctx, messages...); err != nil {
			return nil, fmt.Errorf("append history: %w", err)
		}
	}
	if err := f.syncFollowUp(ctx, committed); err != nil {
		return nil, err
	}
	if f.recorder != nil {
		f.recorder.RecordTurn(string(trigger), time.Since(start))
	}

	resp := &Response{State: committed, Metadata: t.metadata}
	resp.Metadata["turn"] = strconv.Itoa(committed.TurnNumber)
	resp.Metadata["goal"] = string(committed.Goals.Top.Type)
	if result != nil && result.Action != nil {
		resp.Message = result.Action.RenderedText
		resp.Action = committed.LastAgentAction
		resp.Metadata["action"] = string(result.Action.Type)
	}
	slog.Debug("Turn committed", "conversation_id", input.ConversationID, "turn", committed.TurnNumber, "goal", committed.Goals.Top.Type)
	return resp, nil
}

// followUpSkipReason drops timeouts that no longer apply: the conversation was
// answered, or it was rescheduled after firedAt by a turn that already ran.
func followUpSkipReason(state *types.ConversationState, firedAt time.Time) string {
	if !state.FollowUp.Scheduled {
		return "follow_up_not_scheduled"
	}
	if !firedAt.IsZero() && state.FollowUp.DueAt != nil && state.FollowUp.DueAt.After(firedAt) {
		return "follow_up_not_due"
	}
	return ""
}

func (f *Flow) syncFollowUp(ctx context.Context, state *types.ConversationState) error {
	var err error
	if state.FollowUp.Scheduled && state.FollowUp.DueAt != nil {
		err = f.followUps.Schedule(ctx, state.ConversationID, *state.FollowUp.DueAt)
	} else {
		err = f.followUps.Cancel(ctx, state.ConversationID)
	}
	if err != nil {
		return fmt.Errorf("sync follow-up index: %w", err)
	}
	return nil
}

// turn carries the intermediate results of one Invoke.
type turn struct {
	*Flow
	ctx          context.Context
	before       *types.ConversationState
	trigger      types.Trigger
	customerText string
	analysis     *types.TurnAnalysis
	failed       bool
	delta        *types.StateDelta
	working      *types.ConversationState
	action       types.ActionType
	params       types.ActionParameters
	metadata     map[string]string
}

func (t *turn) analyze(history []*schema.Message) {
	analysis, err := t.deps.Analyzer.Analyze(t.ctx, &analyzer.Request{
		CustomerText:    t.customerText,
		LastAgentAction: t.before.LastAgentAction,
		History:         history,
		State:           t.before,
	})
	if err != nil {
		t.logger.Warn("analysis failed", "conversation_id", t.before.ConversationID, "error", err)
		t.fallback("analysis", err)
		return
	}
	t.analysis = analysis
}

func (t *turn) update() {
	t.delta = t.deps.Updater.Update(t.ctx, t.before, t.analysis, t.trigger)
	t.working = t.delta.Applied(t.before)
	t.working.Scratch.Analysis = t.analysis
	t.working.Scratch.TurnError = t.metadata["error"]
}

// plan leaves the goal stack untouched and apologizes when the turn could not
// be read or planned.
func (t *turn) plan() {
	if !t.failed {
		p, err := t.deps.Planner.Plan(t.ctx, t.working)
		if err == nil {
			t.delta.Merge(p.Delta())
			p.Delta().Apply(t.working)
			t.action, t.params = p.Action, p.Parameters
			t.working.Scratch.PlannedAction = p.Action
			t.working.Scratch.ActionParameters = &t.params
			return
		}
		t.logger.Warn("planning failed", "conversation_id", t.before.ConversationID, "error", err)
		t.fallback("planning", err)
		t.working.Scratch.TurnError = err.Error()
	}
	t.action = types.ActionApologizeFallback
	t.params = types.ActionParameters{}
	t.working.Scratch.PlannedAction = t.action
}

func (t *turn) fallback(kind string, err error) {
	t.failed = true
	t.metadata["error"] = err.Error()
	if t.recorder != nil {
		t.recorder.RecordFallback(kind)
	}
}

// DueFollowUps lists the conversations whose follow-up timeout has fired.
func (f *Flow) DueFollowUps(ctx context.Context, now time.Time) ([]string, error) {
	return f.followUps.Due(ctx, now)
}

// FireDueFollowUps runs a follow-up timeout turn for every conversation due at
// now. A failing conversation does not stop the others.
func (f *Flow) FireDueFollowUps(ctx context.Context, now time.Time) ([]*Response, error) {
	ids, err := f.DueFollowUps(ctx, now)
	if err != nil {
		return nil, err
	}
	var (
		responses []*Response
		errs      []error
	)
	for _, id := range ids {
		resp, err := f.Invoke(ctx, &Request{ConversationID: id, Trigger: types.TriggerFollowUpTimeout, FiredAt: now})
		if err != nil {
			errs = append(errs, fmt.Errorf("follow-up %s: %w", id, err))
			continue
		}
		responses = append(responses, resp)
	}
	return responses, errors.Join(errs...)
}

// Seed applies what is already known about a customer to a conversation that
// has not started yet.
func (f *Flow) Seed(ctx context.Context, conversationID string, seed patch.Seed) (*types.ConversationState, error) {
	if conversationID == "" {
		return nil, ErrNoConversationID
	}
	unlock, err := f.locks.Lock(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("lock conversation: %w", err)
	}
	defer unlock()
	ctx = WithConversationID(ctx, conversationID)

	state, err := f.deps.States.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	if state.TurnNumber > 0 {
		return nil, ErrConversationStarted
	}
	ops, err := patch.SeedOperations(state, seed)
	if err != nil {
		return nil, fmt.Errorf("generate seed operations: %w", err)
	}
	if err := patch.ValidateOperations(ops, patch.DefaultSeedPaths); err != nil {
		return nil, err
	}
	slog.Debug("Seeding conversation", "conversation_id", conversationID, "ops", ops)
	seeded, err := patch.Apply(state, ops)
	if err != nil {
		return nil, fmt.Errorf("apply seed: %w", err)
	}
	if err := f.deps.States.Save(ctx, seeded); err != nil {
		return nil, fmt.Errorf("save state: %w", err)
	}
	return seeded, nil
}

// State returns the committed state of a conversation.
func (f *Flow) State(ctx context.Context, conversationID string) (*types.ConversationState, error) {
	if conversationID == "" {
		return nil, ErrNoConversationID
	}
	return f.deps.States.Load(WithConversationID(ctx, conversationID))
}
