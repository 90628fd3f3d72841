package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/tbxark/salesagent/patch"
	"github.com/tbxark/salesagent/types"
)

type FinalizerOption func(*Finalizer)

func WithFinalizerLogger(logger *slog.Logger) FinalizerOption {
	return func(f *Finalizer) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithClock replaces time.Now for follow-up scheduling.
func WithClock(now func() time.Time) FinalizerOption {
	return func(f *Finalizer) {
		if now != nil {
			f.now = now
		}
	}
}

type Finalizer struct {
	followUpDelay time.Duration
	logger        *slog.Logger
	now           func() time.Time
}

func NewFinalizer(followUpDelay time.Duration, opts ...FinalizerOption) (*Finalizer, error) {
	if followUpDelay <= 0 {
		return nil, fmt.Errorf("finalizer: follow-up delay must be positive")
	}
	f := &Finalizer{
		followUpDelay: followUpDelay,
		logger:        slog.Default(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

type FinalizeRequest struct {
	// Before is the committed state the turn started from; it is only used
	// for the turn journal and may be nil.
	Before *types.ConversationState
	// State is the state with the updater and planner deltas applied.
	State        *types.ConversationState
	CustomerText string
	// Result is nil when the planner decided to wait.
	Result *Result
}

// Finalize records the executed action and returns the last delta of the
// turn together with the messages to append to the history. The caller
// appends them only once the state is committed.
func (f *Finalizer) Finalize(ctx context.Context, req *FinalizeRequest) (*types.StateDelta, []*schema.Message) {
	state := req.State
	var msgs []*schema.Message
	if req.CustomerText != "" {
		msgs = append(msgs, schema.UserMessage(req.CustomerText))
	}
	if req.Result != nil && req.Result.Action != nil {
		msgs = append(msgs, schema.AssistantMessage(req.Result.Action.RenderedText, nil))
	}

	delta := &types.StateDelta{Scratch: &types.TurnScratch{}}
	if req.Result != nil && req.Result.Action != nil {
		f.record(state, req.Result, delta)
	}
	delta.FollowUp = types.Some(f.followUp(state, req.Result))

	if req.Before != nil && f.logger.Enabled(ctx, slog.LevelDebug) {
		if diff, err := patch.MergeDiff(req.Before, delta.Applied(state)); err != nil {
			f.logger.Warn("turn journal failed", "conversation_id", state.ConversationID, "error", err)
		} else {
			f.logger.Debug("turn committed", "conversation_id", state.ConversationID, "turn", state.TurnNumber, "diff", string(diff))
		}
	}
	return delta, msgs
}

func (f *Finalizer) record(state *types.ConversationState, result *Result, delta *types.StateDelta) {
	action := *result.Action
	action.Turn = state.TurnNumber
	action.AttemptCount = 1
	if last := state.LastAgentAction; last != nil && last.Type == action.Type {
		action.AttemptCount = last.AttemptCount + 1
	}

	switch action.Type {
	case types.ActionGenerateRebuttal:
		profile := state.Profile.Clone()
		idx := profile.FindOpenObjection(action.Parameters.ObjectionText)
		if idx < 0 {
			f.logger.Warn("rebuttal for unknown objection",
				"conversation_id", state.ConversationID, "objection", action.Parameters.ObjectionText)
			break
		}
		obj := &profile.Objections[idx]
		obj.Attempts++
		obj.Status = types.ObjectionAddressing
		action.AttemptCount = obj.Attempts
		delta.Profile = &profile
	case types.ActionInitiateClosing:
		delta.ClosingStatus = types.Some(types.ClosingAttemptMade)
	case types.ActionAnswerDirectQuestion:
		if log, ok := markAnswered(state.QuestionLog, action.Parameters.QuestionText, answeredWithFallback(result)); ok {
			delta.QuestionLog = &log
		}
	}
	if countsAsFollowUp(state, action.Type) {
		action.AttemptCount = nextFollowUpAttempt(state, action.Parameters)
	}
	delta.LastAgentAction = &action
}

// answeredWithFallback reports whether the answer went out without real
// supporting facts.
func answeredWithFallback(result *Result) bool {
	return result.Fallback || result.RetrievedContext == "" || result.RetrievedContext == types.NoSupportingContext
}

// markAnswered updates the most recent log entry for question. Entries that
// were already repetitions stay repetitions.
func markAnswered(log []types.QuestionEntry, question string, fallback bool) ([]types.QuestionEntry, bool) {
	for i := len(log) - 1; i >= 0; i-- {
		if !types.SameText(log[i].CoreText, question) {
			continue
		}
		out := append([]types.QuestionEntry{}, log...)
		entry := &out[i]
		switch entry.Status {
		case types.QuestionRepetitionAfterOK, types.QuestionRepetitionAfterFallback:
			entry.Status = types.QuestionRepetitionAfterOK
			if fallback {
				entry.Status = types.QuestionRepetitionAfterFallback
			}
		default:
			entry.Status = types.QuestionAnsweredOK
			if fallback {
				entry.Status = types.QuestionAnsweredWithFallback
			}
		}
		return out, true
	}
	return nil, false
}

// countsAsFollowUp reports whether action spends a follow-up attempt. Every
// action taken on a follow-up timeout does, whatever the decider chose.
func countsAsFollowUp(state *types.ConversationState, action types.ActionType) bool {
	if action == "" || action == types.ActionGenerateFarewell {
		return false
	}
	return action == types.ActionSendFollowUpMessage || state.Scratch.Trigger == types.TriggerFollowUpTimeout
}

func nextFollowUpAttempt(state *types.ConversationState, params types.ActionParameters) int {
	if params.FollowUpAttempt > 0 {
		return params.FollowUpAttempt
	}
	return state.FollowUp.AttemptCount + 1
}

// followUp schedules the next timeout after every turn that leaves the
// conversation open, and cancels it once the conversation is ending.
func (f *Finalizer) followUp(state *types.ConversationState, result *Result) types.FollowUp {
	next := types.FollowUp{AttemptCount: state.FollowUp.AttemptCount}
	var action types.ActionType
	if result != nil && result.Action != nil {
		action = result.Action.Type
	}
	if countsAsFollowUp(state, action) {
		next.AttemptCount = nextFollowUpAttempt(state, result.Action.Parameters)
	}
	ending := state.Goals.Top.Type == types.GoalEndingConversation
	if action == types.ActionGenerateFarewell || (ending && action == "") {
		return next
	}
	due := f.now().Add(f.followUpDelay)
	next.Scheduled = true
	next.DueAt = &due
	return next
}
