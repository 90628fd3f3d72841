package planner

import (
	"github.com/tbxark/salesagent/types"
)

// planAction is Step B: exactly one action, or a wait, for the effective goal.
func (c *cycle) planAction() {
	switch c.plan.Goals.Top.Type {
	case types.GoalIdle:
		c.plan.Goals.Replace(types.NewGoal(types.GoalGreeting))
		c.act(types.ActionGenerateGreeting, types.ActionParameters{})
	case types.GoalGreeting:
		c.plan.Goals.Replace(types.NewGoal(types.GoalInvestigatingNeeds))
		c.askSpin(types.SpinSituation, 0)
	case types.GoalHandlingObjection:
		c.handleObjection()
	case types.GoalClarifyingInput:
		d := c.plan.Goals.Top.Details
		if d.QuestionText != "" {
			c.act(types.ActionAnswerDirectQuestion, types.ActionParameters{
				QuestionText:     d.QuestionText,
				RepetitionStatus: d.RepetitionStatus,
			})
			return
		}
		c.act(types.ActionAskClarifyingQuestion, types.ActionParameters{VagueStatement: d.VagueStatement})
	case types.GoalAcknowledgeAndTransition:
		topic := types.GoalIdle.Label()
		if prev := c.plan.Goals.Previous; prev != nil {
			topic = prev.Type.Label()
		}
		c.act(types.ActionAcknowledgeAndTransition, types.ActionParameters{
			OffTopicText:     c.plan.Goals.Top.Details.OffTopicText,
			InterruptedTopic: topic,
		})
	case types.GoalInvestigatingNeeds:
		c.investigate()
	case types.GoalPresentingSolution:
		if last := c.state.LastAgentAction; last != nil && last.Type == types.ActionPresentSolutionOffer {
			return
		}
		c.present()
	case types.GoalAttemptingClose:
		c.close()
	case types.GoalEndingConversation:
		if last := c.state.LastAgentAction; last != nil && last.Type == types.ActionGenerateFarewell {
			return
		}
		c.act(types.ActionGenerateFarewell, types.ActionParameters{Reason: c.plan.Goals.Top.Details.Reason})
	default:
		c.logger.Warn("no plan for goal", "conversation_id", c.state.ConversationID, "goal", c.plan.Goals.Top.Type)
	}
}

func (c *cycle) act(action types.ActionType, params types.ActionParameters) {
	c.plan.Action = action
	c.plan.Parameters = params
}

func (c *cycle) handleObjection() {
	text := c.plan.Goals.Top.Details.OriginalObjectionText
	idx := c.state.Profile.FindObjection(text)
	if idx < 0 {
		c.logger.Warn("objection under handling not found", "conversation_id", c.state.ConversationID, "objection", text)
		return
	}
	obj := c.state.Profile.Objections[idx]
	status := obj.Status
	if status == types.ObjectionAddressing && !c.lastActionWas(types.ActionGenerateRebuttal, func(p types.ActionParameters) bool {
		return types.SameText(p.ObjectionText, obj.Text)
	}) {
		// The rebuttal was cut short by another interruption.
		status = types.ObjectionActive
	}
	switch status {
	case types.ObjectionActive:
		if obj.Attempts < c.cfg.MaxRebuttalAttempts {
			c.act(types.ActionGenerateRebuttal, types.ActionParameters{
				ObjectionText: obj.Text,
				AttemptNumber: obj.Attempts + 1,
			})
			return
		}
		c.plan.Goals.Replace(types.AgentGoal{
			Type:    types.GoalEndingConversation,
			Details: types.GoalDetails{Reason: types.EndingReasonImpasse, OriginalObjectionText: obj.Text},
		})
		c.act(types.ActionAcknowledgeAndTransition, types.ActionParameters{
			ObjectionText:    obj.Text,
			Reason:           types.EndingReasonImpasse,
			InterruptedTopic: types.GoalEndingConversation.Label(),
		})
	case types.ObjectionAddressing:
		// Rebuttal in flight; wait for the customer.
	default:
		c.logger.Debug("objection no longer open", "conversation_id", c.state.ConversationID, "objection", text, "status", obj.Status)
	}
}

// lastActionWas reports whether the previous agent action was of type action
// and its parameters satisfy match.
func (c *cycle) lastActionWas(action types.ActionType, match func(types.ActionParameters) bool) bool {
	last := c.state.LastAgentAction
	if last == nil || last.Type != action {
		return false
	}
	return match == nil || match(last.Parameters)
}

func (c *cycle) askSpin(spin types.SpinType, asked int) {
	details := c.plan.Goals.Top.Details
	details.SpinQuestionsAsked = asked + 1
	details.LastSpinType = spin
	c.plan.Goals.Update(details)
	c.act(types.ActionAskSpinQuestion, types.ActionParameters{SpinType: spin})
}

func (c *cycle) investigate() {
	d := c.plan.Goals.Top.Details
	needPayoffConfirmed := d.LastSpinType == types.SpinNeedPayoff && c.state.Profile.NeedConfirmedAt(c.state.TurnNumber)
	if d.SpinQuestionsAsked >= c.cfg.MaxSpinQuestions || needPayoffConfirmed {
		c.plan.Goals.Replace(types.NewGoal(types.GoalPresentingSolution))
		c.present()
		return
	}
	c.askSpin(d.LastSpinType.Next(), d.SpinQuestionsAsked)
}

func (c *cycle) present() {
	proposal := c.proposal()
	var keyBenefit string
	if offering, ok := c.selectOffering(); ok {
		if proposal == nil || proposal.ProductName != offering.Name {
			proposal = &types.Proposal{
				ProductName: offering.Name,
				Quantity:    1,
				Price:       offering.Price,
				PriceInfo:   offering.PriceInfo,
			}
			c.plan.ActiveProposal = proposal
		}
		keyBenefit = offering.KeyBenefit()
	} else if need, ok := c.state.Profile.PriorityNeed(); ok {
		keyBenefit = need.Text
	}

	details := c.plan.Goals.Top.Details
	details.KeyBenefit = keyBenefit
	params := types.ActionParameters{KeyBenefit: keyBenefit}
	if proposal != nil {
		details.ProductName = proposal.ProductName
		params.ProductName = proposal.ProductName
		params.Quantity = proposal.Quantity
		params.Price = proposal.Price
		params.PriceInfo = proposal.PriceInfo
	}
	c.plan.Goals.Update(details)
	c.act(types.ActionPresentSolutionOffer, params)
}

func (c *cycle) proposal() *types.Proposal {
	if c.plan.ActiveProposal != nil {
		return c.plan.ActiveProposal
	}
	return c.state.ActiveProposal
}

func (c *cycle) close() {
	status := c.state.ClosingStatus
	if c.plan.ClosingStatus != "" {
		status = c.plan.ClosingStatus
	}
	params := types.ActionParameters{}
	if p := c.proposal(); p != nil {
		params.ProductName = p.ProductName
		params.Quantity = p.Quantity
		params.Price = p.Price
		params.PriceInfo = p.PriceInfo
	}

	switch status {
	case types.ClosingNotStarted, "":
		c.act(types.ActionInitiateClosing, params)
	case types.ClosingAttemptMade:
		// Another action went out since the attempt; ask again.
		if !c.lastActionWas(types.ActionInitiateClosing, nil) {
			c.act(types.ActionInitiateClosing, params)
		}
	case types.ClosingAwaitingConfirmation:
		c.act(types.ActionConfirmOrderDetails, params)
	case types.ClosingConfirmedSuccess:
		details := c.plan.Goals.Top.Details
		if details.ClosingStep == types.ClosingStepOrderProcessed {
			c.end(types.EndingReasonCompleted)
			return
		}
		details.ClosingStep = types.ClosingStepOrderProcessed
		c.plan.Goals.Update(details)
		c.act(types.ActionProcessOrderConfirmation, types.ActionParameters{ProductName: params.ProductName})
	case types.ClosingNeedsCorrection:
		c.act(types.ActionHandleClosingCorrection, params)
	case types.ClosingConfirmationRejected:
		c.end(types.EndingReasonRejected)
	default:
		// confirmed_failed waits for the customer.
	}
}

func (c *cycle) end(reason string) {
	c.plan.Goals.Replace(types.AgentGoal{
		Type:    types.GoalEndingConversation,
		Details: types.GoalDetails{Reason: reason},
	})
	c.act(types.ActionGenerateFarewell, types.ActionParameters{Reason: reason})
}
