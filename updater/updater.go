// Package updater folds a TurnAnalysis into a conversation state delta.
package updater

import (
	"context"
	"log/slog"
	"slices"

	"github.com/google/uuid"
	"github.com/tbxark/salesagent/types"
)

// AnalyticsSink receives the "missing information" signal raised when a
// customer repeats a question that was previously answered with a fallback.
type AnalyticsSink interface {
	RecordMissingInformation(ctx context.Context, conversationID, question string)
}

type Option func(*Updater)

func WithAnalytics(sink AnalyticsSink) Option {
	return func(u *Updater) {
		u.analytics = sink
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(u *Updater) {
		if logger != nil {
			u.logger = logger
		}
	}
}

// WithIDGenerator overrides how interruption IDs are minted.
func WithIDGenerator(gen func() string) Option {
	return func(u *Updater) {
		if gen != nil {
			u.newID = gen
		}
	}
}

type Updater struct {
	analytics AnalyticsSink
	logger    *slog.Logger
	newID     func() string
}

func New(opts ...Option) *Updater {
	u := &Updater{
		logger: slog.Default(),
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Update returns the delta produced by applying analysis to state. A nil
// analysis means nothing new was learned this turn: only the turn counter
// moves.
func (u *Updater) Update(ctx context.Context, state *types.ConversationState, analysis *types.TurnAnalysis, trigger types.Trigger) *types.StateDelta {
	turn := state.TurnNumber + 1
	scratch := state.Scratch
	scratch.Trigger = trigger
	scratch.Analysis = nil

	delta := &types.StateDelta{
		TurnNumber: types.Some(turn),
		Scratch:    &scratch,
	}
	if analysis == nil {
		return delta
	}

	t := &turnUpdate{
		Updater:   u,
		ctx:       ctx,
		state:     state,
		analysis:  analysis,
		turn:      turn,
		profile:   state.Profile.Clone(),
		log:       slices.Clone(state.QuestionLog),
		queue:     slices.Clone(state.InterruptionQueue),
		closing:   state.ClosingStatus,
		followUp:  state.FollowUp.Clone(),
		lastAgent: state.LastAgentAction,
	}
	if t.profile.Certainty == nil {
		t.profile.Certainty = map[string]int{}
	}

	t.processReaction()
	t.logQuestions()
	t.addObjections()
	t.addNeeds()
	t.confirmNeed()
	t.enqueueFlags()
	t.recordReading()

	delta.Profile = &t.profile
	delta.QuestionLog = &t.log
	delta.InterruptionQueue = &t.queue
	if t.closing != state.ClosingStatus {
		delta.ClosingStatus = types.Some(t.closing)
	}
	if trigger == types.TriggerCustomerMessage {
		delta.FollowUp = &t.followUp
	}
	return delta
}

type turnUpdate struct {
	*Updater
	ctx       context.Context
	state     *types.ConversationState
	analysis  *types.TurnAnalysis
	turn      int
	profile   types.CustomerProfile
	log       []types.QuestionEntry
	queue     []types.Interruption
	closing   types.ClosingStatus
	followUp  types.FollowUp
	lastAgent *types.AgentAction
}

// processReaction moves in-flight sub-processes according to how the customer
// replied to the previous agent action.
func (t *turnUpdate) processReaction() {
	if t.lastAgent == nil {
		return
	}
	a := t.analysis
	switch t.lastAgent.Type {
	case types.ActionGenerateRebuttal:
		idx := t.profile.FindOpenObjection(t.lastAgent.Parameters.ObjectionText)
		if idx < 0 || t.profile.Objections[idx].Status != types.ObjectionAddressing {
			return
		}
		obj := &t.profile.Objections[idx]
		reRaised := slices.ContainsFunc(a.Objections, func(text string) bool {
			return types.SameText(text, obj.Text)
		})
		switch {
		case reRaised || a.Negative() ||
			a.ResponseToLastAction == types.ResponseIgnored ||
			a.ResponseToLastAction == types.ResponsePartiallyAnswered:
			obj.Status = types.ObjectionActive
		case a.Positive():
			obj.Status = types.ObjectionResolved
		}
	case types.ActionInitiateClosing:
		if t.closing != types.ClosingAttemptMade {
			return
		}
		switch {
		case a.Negative():
			t.closing = types.ClosingConfirmationRejected
		case a.Positive():
			t.closing = types.ClosingAwaitingConfirmation
		}
	case types.ActionConfirmOrderDetails:
		if t.closing != types.ClosingAwaitingConfirmation {
			return
		}
		switch {
		case a.Negative():
			t.closing = types.ClosingConfirmationRejected
		case a.Intent.BuyingSignal() || a.ResponseToLastAction == types.ResponseAcknowledged:
			t.closing = types.ClosingConfirmedSuccess
		case a.Intent == types.IntentStatingInfo:
			t.closing = types.ClosingNeedsCorrection
		case a.ResponseToLastAction == types.ResponseAnsweredClearly:
			t.closing = types.ClosingConfirmedSuccess
		}
	case types.ActionHandleClosingCorrection:
		if t.closing == types.ClosingNeedsCorrection && a.ResponseToLastAction != types.ResponseIgnored {
			t.closing = types.ClosingAwaitingConfirmation
		}
	}
}

func (t *turnUpdate) logQuestions() {
	for _, q := range t.analysis.Questions {
		if q.IsRepetition() {
			idx := slices.IndexFunc(t.log, func(e types.QuestionEntry) bool {
				return e.TurnAsked == q.OriginalTurn && e.CoreText == q.OriginalText
			})
			if idx >= 0 {
				entry := &t.log[idx]
				counted := entry.RepeatedTurn == t.turn
				if !counted {
					entry.Attempts++
					entry.RepeatedTurn = t.turn
				}
				switch q.Repetition {
				case types.RepetitionAfterSatisfactoryAnswer:
					entry.Status = types.QuestionRepetitionAfterOK
				case types.RepetitionAfterFallback:
					entry.Status = types.QuestionRepetitionAfterFallback
					if t.analytics != nil && !counted {
						t.analytics.RecordMissingInformation(t.ctx, t.state.ConversationID, entry.CoreText)
					}
				}
				// Use the logged phrasing so the answer can be matched back
				// to this entry.
				t.enqueue(types.InterruptionQuestion, entry.CoreText, q.Repetition)
				continue
			}
			t.logger.Warn("repeated question has no log entry",
				"conversation_id", t.state.ConversationID, "question", q.CoreText, "original_turn", q.OriginalTurn)
		}
		alreadyLogged := slices.ContainsFunc(t.log, func(e types.QuestionEntry) bool {
			return e.TurnAsked == t.turn && e.CoreText == q.CoreText
		})
		if !alreadyLogged {
			t.log = append(t.log, types.QuestionEntry{
				CoreText:  q.CoreText,
				TurnAsked: t.turn,
				Status:    types.QuestionNewlyAsked,
				Attempts:  1,
			})
		}
		t.enqueue(types.InterruptionQuestion, q.CoreText, types.RepetitionNone)
	}
}

func (t *turnUpdate) addObjections() {
	for _, text := range t.analysis.Objections {
		if t.profile.FindOpenObjection(text) >= 0 {
			continue
		}
		t.profile.Objections = append(t.profile.Objections, types.ObjectionEntry{
			Text:       text,
			Status:     types.ObjectionActive,
			SourceTurn: t.turn,
		})
		t.enqueue(types.InterruptionObjection, text, "")
	}
}

func (t *turnUpdate) addNeeds() {
	t.profile.Needs = appendEntries(t.profile.Needs, t.analysis.Needs, t.turn)
	t.profile.PainPoints = appendEntries(t.profile.PainPoints, t.analysis.PainPoints, t.turn)
}

func appendEntries(entries []types.ProfileEntry, texts []string, turn int) []types.ProfileEntry {
	for _, text := range texts {
		if slices.ContainsFunc(entries, func(e types.ProfileEntry) bool { return e.Text == text }) {
			continue
		}
		entries = append(entries, types.ProfileEntry{Text: text, Status: types.EntryActive, SourceTurn: turn})
	}
	return entries
}

// confirmNeed marks the most recent active need as confirmed when the
// customer agreed with a need-payoff question.
func (t *turnUpdate) confirmNeed() {
	last := t.lastAgent
	if last == nil || last.Type != types.ActionAskSpinQuestion || last.Parameters.SpinType != types.SpinNeedPayoff {
		return
	}
	a := t.analysis
	if a.Negative() || !(a.Positive() || a.Intent == types.IntentNeedOrPain) {
		return
	}
	for i := len(t.profile.Needs) - 1; i >= 0; i-- {
		if t.profile.Needs[i].Status == types.EntryActive {
			t.profile.Needs[i].Status = types.EntryConfirmed
			t.profile.Needs[i].ConfirmedTurn = t.turn
			return
		}
	}
}

func (t *turnUpdate) enqueueFlags() {
	if t.analysis.PrimarilyVague {
		t.enqueue(types.InterruptionVagueStatement, t.analysis.CustomerText, "")
	}
	if t.analysis.PrimarilyOffTopic {
		t.enqueue(types.InterruptionOffTopic, t.analysis.CustomerText, "")
	}
}

func (t *turnUpdate) recordReading() {
	a := t.analysis
	t.profile.LastIntent = a.Intent
	t.profile.LastResponseType = a.ResponseToLastAction
	for k, v := range a.Certainty {
		t.profile.Certainty[k] = v
	}
	t.followUp = types.FollowUp{}
}

// enqueue adds a pending interruption unless an identical one is already
// waiting.
func (t *turnUpdate) enqueue(kind types.InterruptionKind, text string, repetition types.RepetitionStatus) {
	for i, existing := range t.queue {
		if existing.Status == types.InterruptionPending && existing.Kind == kind && types.SameText(existing.Text, text) {
			t.queue[i].TurnDetected = t.turn
			t.queue[i].RepetitionStatus = repetition
			return
		}
	}
	t.queue = append(t.queue, types.Interruption{
		ID:               t.newID(),
		Kind:             kind,
		Text:             text,
		Status:           types.InterruptionPending,
		TurnDetected:     t.turn,
		RepetitionStatus: repetition,
	})
}
