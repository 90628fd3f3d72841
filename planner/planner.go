// Package planner resolves the active goal of a conversation and picks the
// single next action the agent takes.
package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/google/uuid"
	"github.com/tbxark/salesagent/proactive"
	"github.com/tbxark/salesagent/types"
)

const (
	DefaultMaxRebuttalAttempts = 2
	DefaultMaxSpinQuestions    = 5
	DefaultMaxFollowUpAttempts = 3
)

// Recorder receives planning analytics.
type Recorder interface {
	RecordPlannedAction(action string)
	RecordGoalTransition(from, to string)
}

type Config struct {
	MaxRebuttalAttempts int
	MaxSpinQuestions    int
	MaxFollowUpAttempts int
	Offerings           []types.Offering
}

func (c Config) withDefaults() Config {
	if c.MaxRebuttalAttempts <= 0 {
		c.MaxRebuttalAttempts = DefaultMaxRebuttalAttempts
	}
	if c.MaxSpinQuestions <= 0 {
		c.MaxSpinQuestions = DefaultMaxSpinQuestions
	}
	if c.MaxFollowUpAttempts <= 0 {
		c.MaxFollowUpAttempts = DefaultMaxFollowUpAttempts
	}
	return c
}

// Plan is the outcome of one planning cycle. An empty Action means the agent
// waits this turn.
type Plan struct {
	Goals          types.GoalStack
	Action         types.ActionType
	Parameters     types.ActionParameters
	Consumed       []types.Interruption
	Queue          []types.Interruption
	ActiveProposal *types.Proposal
	ClosingStatus  types.ClosingStatus
	Resumed        bool
	Delegation     types.ProactiveReason
}

func (p *Plan) Waiting() bool {
	return p.Action == ""
}

// Delta converts the plan into the state fields the planner owns.
func (p *Plan) Delta() *types.StateDelta {
	delta := &types.StateDelta{
		Goals:             types.Some(p.Goals.Clone()),
		InterruptionQueue: types.Some(slices.Clone(p.Queue)),
	}
	if p.ActiveProposal != nil {
		delta.ActiveProposal = types.Some(*p.ActiveProposal)
	}
	if p.ClosingStatus != "" {
		delta.ClosingStatus = types.Some(p.ClosingStatus)
	}
	return delta
}

type Option func(*Planner)

func WithDecider(decider proactive.Decider) Option {
	return func(p *Planner) {
		p.decider = decider
	}
}

func WithRecorder(recorder Recorder) Option {
	return func(p *Planner) {
		p.recorder = recorder
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Planner) {
		if logger != nil {
			p.logger = logger
		}
	}
}

type Planner struct {
	cfg      Config
	decider  proactive.Decider
	recorder Recorder
	logger   *slog.Logger
}

func New(cfg Config, opts ...Option) *Planner {
	p := &Planner{
		cfg:    cfg.withDefaults(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Plan runs a planning cycle and, when it delegates, consults the proactive
// decider and runs the second pass.
func (p *Planner) Plan(ctx context.Context, state *types.ConversationState) (*Plan, error) {
	plan := p.Step(state)
	if plan.Action == types.ActionDecideProactiveStep {
		var err error
		plan, err = p.delegate(ctx, state, plan)
		if err != nil {
			return nil, err
		}
	}
	if p.recorder != nil {
		if !plan.Waiting() {
			p.recorder.RecordPlannedAction(string(plan.Action))
		}
		p.recorder.RecordGoalTransition(string(state.Goals.Top.Type), string(plan.Goals.Top.Type))
	}
	return plan, nil
}

func (p *Planner) delegate(ctx context.Context, state *types.ConversationState, plan *Plan) (*Plan, error) {
	if p.decider == nil {
		return nil, errors.New("planner: proactive decider is required to handle stagnation")
	}
	req := &proactive.Request{
		State:               state,
		Reason:              plan.Delegation,
		FollowUpAttempt:     state.FollowUp.AttemptCount,
		MaxFollowUpAttempts: p.cfg.MaxFollowUpAttempts,
	}
	if req.Exhausted() {
		plan.Action = types.ActionGenerateFarewell
		plan.Parameters = types.ActionParameters{Reason: types.EndingReasonFollowUp}
		plan.Goals.Replace(types.AgentGoal{
			Type:    types.GoalEndingConversation,
			Details: types.GoalDetails{Reason: types.EndingReasonFollowUp},
		})
		return plan, nil
	}
	decision, err := p.decider.Decide(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("decide proactive step: %w", err)
	}
	if decision == nil {
		return nil, errors.New("planner: proactive decider returned no decision")
	}

	if decision.SuggestedGoal != nil {
		return p.secondPass(state, plan, *decision.SuggestedGoal), nil
	}

	plan.Action = decision.Action
	plan.Parameters = decision.Parameters
	if decision.Action == types.ActionGenerateFarewell {
		plan.Goals.Replace(types.AgentGoal{
			Type:    types.GoalEndingConversation,
			Details: types.GoalDetails{Reason: decision.Parameters.Reason},
		})
	}
	return plan, nil
}

// secondPass replans with the suggested goal in place of the stalled one.
func (p *Planner) secondPass(state *types.ConversationState, first *Plan, goal types.AgentGoal) *Plan {
	next := state.Clone()
	next.Goals.Replace(goal)
	next.InterruptionQueue = first.Queue
	plan := p.step(next, false)
	plan.Delegation = first.Delegation
	return plan
}

// Step is the deterministic planning cycle. It may return
// ActionDecideProactiveStep, which Plan resolves.
func (p *Planner) Step(state *types.ConversationState) *Plan {
	return p.step(state, true)
}

func (p *Planner) step(state *types.ConversationState, allowDelegation bool) *Plan {
	c := &cycle{
		Planner: p,
		state:   state,
		plan: &Plan{
			Goals: state.Goals.Clone(),
			Queue: slices.Clone(state.InterruptionQueue),
		},
	}
	if c.plan.Queue == nil {
		c.plan.Queue = []types.Interruption{}
	}

	// Step A.
	switch {
	case c.buyingSignal():
		c.plan.Goals.Replace(types.AgentGoal{
			Type:    types.GoalAttemptingClose,
			Details: types.GoalDetails{ClosingStep: types.ClosingStepInitialAttempt},
		})
		c.plan.ClosingStatus = types.ClosingNotStarted
	case c.takeInterruption():
	case c.resume():
		return c.plan
	default:
		if allowDelegation {
			if reason, ok := c.stalled(); ok {
				c.plan.Action = types.ActionDecideProactiveStep
				c.plan.Delegation = reason
				return c.plan
			}
		}
	}

	// Step B.
	c.planAction()
	return c.plan
}

type cycle struct {
	*Planner
	state *types.ConversationState
	plan  *Plan
}

func (c *cycle) trigger() types.Trigger {
	if c.state.Scratch.Trigger == "" {
		return types.TriggerCustomerMessage
	}
	return c.state.Scratch.Trigger
}

func (c *cycle) buyingSignal() bool {
	return c.trigger() == types.TriggerCustomerMessage &&
		c.plan.Goals.Top.Type == types.GoalPresentingSolution &&
		c.state.Profile.LastIntent.BuyingSignal() &&
		!c.state.Profile.HasOpenObjections()
}

// takeInterruption handles the single highest-priority pending interruption.
func (c *cycle) takeInterruption() bool {
	best := -1
	for i, it := range c.plan.Queue {
		if it.Status != types.InterruptionPending {
			continue
		}
		if best < 0 || it.Kind.Priority() < c.plan.Queue[best].Kind.Priority() {
			best = i
		}
	}
	if best < 0 {
		return false
	}
	it := c.plan.Queue[best]
	c.plan.Queue = slices.Delete(c.plan.Queue, best, best+1)
	it.Status = types.InterruptionResolved

	var goal types.AgentGoal
	switch it.Kind {
	case types.InterruptionObjection:
		goal = types.AgentGoal{Type: types.GoalHandlingObjection, Details: types.GoalDetails{OriginalObjectionText: it.Text}}
	case types.InterruptionQuestion:
		goal = types.AgentGoal{Type: types.GoalClarifyingInput, Details: types.GoalDetails{QuestionText: it.Text, RepetitionStatus: it.RepetitionStatus}}
	case types.InterruptionVagueStatement:
		goal = types.AgentGoal{Type: types.GoalClarifyingInput, Details: types.GoalDetails{VagueStatement: it.Text}}
	case types.InterruptionOffTopic:
		it.Status = types.InterruptionAcknowledged
		goal = types.AgentGoal{Type: types.GoalAcknowledgeAndTransition, Details: types.GoalDetails{OffTopicText: it.Text}}
	default:
		c.logger.Warn("dropping interruption of unknown kind", "conversation_id", c.state.ConversationID, "kind", it.Kind)
		return false
	}
	c.requeueDisplacedObjection()
	c.plan.Goals.Interrupt(goal)
	c.plan.Consumed = append(c.plan.Consumed, it)
	return true
}

// requeueDisplacedObjection puts an objection that is still open back in the
// queue when its handling goal is about to be replaced.
func (c *cycle) requeueDisplacedObjection() {
	top := c.plan.Goals.Top
	if top.Type != types.GoalHandlingObjection {
		return
	}
	text := top.Details.OriginalObjectionText
	if c.state.Profile.FindOpenObjection(text) < 0 {
		return
	}
	queued := slices.ContainsFunc(c.plan.Queue, func(it types.Interruption) bool {
		return it.Status == types.InterruptionPending && it.Kind == types.InterruptionObjection && types.SameText(it.Text, text)
	})
	if queued {
		return
	}
	c.plan.Queue = append(c.plan.Queue, types.Interruption{
		ID:           uuid.NewString(),
		Kind:         types.InterruptionObjection,
		Text:         text,
		Status:       types.InterruptionPending,
		TurnDetected: c.state.TurnNumber,
	})
}

// resume pops a finished temporary goal.
func (c *cycle) resume() bool {
	top := c.plan.Goals.Top
	if !top.Type.Temporary() {
		return false
	}
	if top.Type == types.GoalHandlingObjection {
		idx := c.state.Profile.FindObjection(top.Details.OriginalObjectionText)
		if idx < 0 || c.state.Profile.Objections[idx].Status != types.ObjectionResolved {
			return false
		}
	}
	if !c.plan.Goals.Resume() {
		c.plan.Goals.Replace(types.NewGoal(types.GoalInvestigatingNeeds))
	}
	resumed := c.plan.Goals.Top
	switch resumed.Type {
	case types.GoalInvestigatingNeeds:
		resumed.Details.SpinQuestionsAsked = 0
	}
	resumed.Details.QuestionText = ""
	resumed.Details.RepetitionStatus = ""
	resumed.Details.VagueStatement = ""
	resumed.Details.OffTopicText = ""
	resumed.Details.OriginalObjectionText = ""
	c.plan.Goals.Update(resumed.Details)
	c.plan.Resumed = true
	return true
}

// stalled reports whether the turn should be handed to the proactive
// decider.
func (c *cycle) stalled() (types.ProactiveReason, bool) {
	goal := c.plan.Goals.Top.Type
	if c.trigger() == types.TriggerFollowUpTimeout {
		if goal == types.GoalEndingConversation {
			return "", false
		}
		return types.ProactiveFollowUpTimeout, true
	}
	if goal != types.GoalInvestigatingNeeds && goal != types.GoalPresentingSolution {
		return "", false
	}
	profile := c.state.Profile
	if profile.LastResponseType != types.ResponseAcknowledged {
		return "", false
	}
	switch profile.LastIntent {
	case types.IntentPositiveFeedback, types.IntentRequestNextStep, types.IntentNegativeFeedback, types.IntentObjection, types.IntentFarewell:
		return "", false
	}
	if c.learnedThisTurn() {
		return "", false
	}
	return types.ProactiveStagnation, true
}

func (c *cycle) learnedThisTurn() bool {
	turn := c.state.TurnNumber
	profile := c.state.Profile
	for _, q := range c.state.QuestionLog {
		if q.TurnAsked == turn {
			return true
		}
	}
	for _, o := range profile.Objections {
		if o.SourceTurn == turn {
			return true
		}
	}
	for _, entries := range [][]types.ProfileEntry{profile.Needs, profile.PainPoints} {
		for _, e := range entries {
			if e.SourceTurn == turn {
				return true
			}
		}
	}
	return false
}
