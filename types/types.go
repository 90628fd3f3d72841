package types

type GoalType string

const (
	GoalIdle                     GoalType = "IDLE"
	GoalGreeting                 GoalType = "GREETING"
	GoalInvestigatingNeeds       GoalType = "INVESTIGATING_NEEDS"
	GoalPresentingSolution       GoalType = "PRESENTING_SOLUTION"
	GoalHandlingObjection        GoalType = "HANDLING_OBJECTION"
	GoalClarifyingInput          GoalType = "CLARIFYING_INPUT"
	GoalAcknowledgeAndTransition GoalType = "ACKNOWLEDGE_AND_TRANSITION"
	GoalAttemptingClose          GoalType = "ATTEMPTING_CLOSE"
	GoalEndingConversation       GoalType = "ENDING_CONVERSATION"
)

// Temporary reports whether the goal only exists to serve an interruption and
// must be resumed back to the goal it interrupted.
func (g GoalType) Temporary() bool {
	switch g {
	case GoalHandlingObjection, GoalClarifyingInput, GoalAcknowledgeAndTransition:
		return true
	default:
		return false
	}
}

// Label is the human-readable topic used when the agent steers back to an
// interrupted goal.
func (g GoalType) Label() string {
	switch g {
	case GoalIdle, GoalGreeting:
		return "getting to know you"
	case GoalInvestigatingNeeds:
		return "understanding your needs"
	case GoalPresentingSolution:
		return "the solution we were discussing"
	case GoalHandlingObjection:
		return "your concern"
	case GoalClarifyingInput:
		return "your question"
	case GoalAttemptingClose:
		return "finalizing your order"
	case GoalEndingConversation:
		return "wrapping up"
	default:
		return "our conversation"
	}
}

type ActionType string

const (
	ActionGenerateGreeting         ActionType = "GENERATE_GREETING"
	ActionAskSpinQuestion          ActionType = "ASK_SPIN_QUESTION"
	ActionAnswerDirectQuestion     ActionType = "ANSWER_DIRECT_QUESTION"
	ActionAskClarifyingQuestion    ActionType = "ASK_CLARIFYING_QUESTION"
	ActionGenerateRebuttal         ActionType = "GENERATE_REBUTTAL"
	ActionAcknowledgeAndTransition ActionType = "ACKNOWLEDGE_AND_TRANSITION"
	ActionPresentSolutionOffer     ActionType = "PRESENT_SOLUTION_OFFER"
	ActionInitiateClosing          ActionType = "INITIATE_CLOSING"
	ActionConfirmOrderDetails      ActionType = "CONFIRM_ORDER_DETAILS"
	ActionProcessOrderConfirmation ActionType = "PROCESS_ORDER_CONFIRMATION"
	ActionHandleClosingCorrection  ActionType = "HANDLE_CLOSING_CORRECTION"
	ActionGenerateFarewell         ActionType = "GENERATE_FAREWELL"
	ActionSendFollowUpMessage      ActionType = "SEND_FOLLOW_UP_MESSAGE"
	ActionAskReengagementQuestion  ActionType = "ASK_REENGAGEMENT_QUESTION"
	ActionDecideProactiveStep      ActionType = "DECIDE_PROACTIVE_STEP"
	ActionApologizeFallback        ActionType = "APOLOGIZE_FALLBACK"
)

// NeedsSupportingFacts reports whether rendering the action should be backed
// by retrieved knowledge.
func (a ActionType) NeedsSupportingFacts() bool {
	switch a {
	case ActionAnswerDirectQuestion, ActionGenerateRebuttal, ActionPresentSolutionOffer:
		return true
	default:
		return false
	}
}

type SpinType string

const (
	SpinSituation   SpinType = "Situation"
	SpinProblem     SpinType = "Problem"
	SpinImplication SpinType = "Implication"
	SpinNeedPayoff  SpinType = "NeedPayoff"
)

// Next returns the SPIN stage that follows s. The cycle never returns to
// Situation once it has started: NeedPayoff wraps around to Problem.
func (s SpinType) Next() SpinType {
	switch s {
	case SpinSituation:
		return SpinProblem
	case SpinProblem:
		return SpinImplication
	case SpinImplication:
		return SpinNeedPayoff
	case SpinNeedPayoff:
		return SpinProblem
	default:
		return SpinSituation
	}
}

type Intent string

const (
	IntentGreeting                Intent = "greeting"
	IntentFarewell                Intent = "farewell"
	IntentQuestioning             Intent = "questioning"
	IntentStatingInfo             Intent = "stating_info"
	IntentObjection               Intent = "objection"
	IntentNeedOrPain              Intent = "need_or_pain"
	IntentRespondingToAgent       Intent = "responding_to_agent"
	IntentVague                   Intent = "vague"
	IntentOffTopic                Intent = "off_topic"
	IntentPositiveFeedback        Intent = "positive_feedback"
	IntentNegativeFeedback        Intent = "negative_feedback"
	IntentRequestingClarification Intent = "requesting_clarification"
	IntentRequestNextStep         Intent = "request_next_step"
)

// BuyingSignal reports whether the intent is strong enough to move a
// presentation straight to a closing attempt.
func (i Intent) BuyingSignal() bool {
	return i == IntentPositiveFeedback || i == IntentRequestNextStep
}

type ResponseType string

const (
	ResponseAnsweredClearly   ResponseType = "answered_clearly"
	ResponsePartiallyAnswered ResponseType = "partially_answered"
	ResponseIgnored           ResponseType = "ignored"
	ResponseAcknowledged      ResponseType = "acknowledged"
	ResponseNotApplicable     ResponseType = "not_applicable"
)

type InterruptionKind string

const (
	InterruptionObjection      InterruptionKind = "objection"
	InterruptionQuestion       InterruptionKind = "question"
	InterruptionVagueStatement InterruptionKind = "vague_statement"
	InterruptionOffTopic       InterruptionKind = "off_topic"
)

// Priority orders interruption kinds; a lower value is handled first.
func (k InterruptionKind) Priority() int {
	switch k {
	case InterruptionObjection:
		return 0
	case InterruptionQuestion:
		return 1
	case InterruptionVagueStatement:
		return 2
	case InterruptionOffTopic:
		return 3
	default:
		return 4
	}
}

type InterruptionStatus string

const (
	InterruptionPending      InterruptionStatus = "pending"
	InterruptionResolved     InterruptionStatus = "resolved"
	InterruptionAcknowledged InterruptionStatus = "acknowledged"
)

type ObjectionStatus string

const (
	ObjectionActive     ObjectionStatus = "active"
	ObjectionAddressing ObjectionStatus = "addressing"
	ObjectionResolved   ObjectionStatus = "resolved"
	ObjectionIgnored    ObjectionStatus = "ignored"
)

// Open reports whether the objection still counts against the conversation.
func (s ObjectionStatus) Open() bool {
	return s == ObjectionActive || s == ObjectionAddressing
}

type EntryStatus string

const (
	EntryActive    EntryStatus = "active"
	EntryConfirmed EntryStatus = "confirmed"
	EntryAddressed EntryStatus = "addressed"
)

type QuestionStatus string

const (
	QuestionNewlyAsked              QuestionStatus = "newly_asked"
	QuestionAnsweredOK              QuestionStatus = "answered_ok"
	QuestionAnsweredWithFallback    QuestionStatus = "answered_with_fallback"
	QuestionRepetitionAfterOK       QuestionStatus = "repetition_after_ok"
	QuestionRepetitionAfterFallback QuestionStatus = "repetition_after_fallback"
)

type RepetitionStatus string

const (
	RepetitionNone                    RepetitionStatus = "newly_asked"
	RepetitionAfterSatisfactoryAnswer RepetitionStatus = "repetition_after_satisfactory_answer"
	RepetitionAfterFallback           RepetitionStatus = "repetition_after_fallback"
	RepetitionUnknownPreviousStatus   RepetitionStatus = "unknown_previous_status"
)

// RepetitionFromLogged relabels the status of a matched log entry into the
// repetition classification reported by the analyzer.
func RepetitionFromLogged(status QuestionStatus) RepetitionStatus {
	switch status {
	case QuestionAnsweredOK, QuestionRepetitionAfterOK:
		return RepetitionAfterSatisfactoryAnswer
	case QuestionAnsweredWithFallback, QuestionRepetitionAfterFallback:
		return RepetitionAfterFallback
	default:
		return RepetitionUnknownPreviousStatus
	}
}

type ClosingStatus string

const (
	ClosingNotStarted           ClosingStatus = "not_started"
	ClosingAttemptMade          ClosingStatus = "attempt_made"
	ClosingAwaitingConfirmation ClosingStatus = "awaiting_confirmation"
	ClosingConfirmationRejected ClosingStatus = "confirmation_rejected"
	ClosingNeedsCorrection      ClosingStatus = "needs_correction"
	ClosingConfirmedSuccess     ClosingStatus = "confirmed_success"
	ClosingConfirmedFailed      ClosingStatus = "confirmed_failed"
)

type Trigger string

const (
	TriggerCustomerMessage Trigger = "customer_message"
	TriggerFollowUpTimeout Trigger = "follow_up_timeout"
)

type ProactiveReason string

const (
	ProactiveFollowUpTimeout ProactiveReason = "follow_up_timeout"
	ProactiveStagnation      ProactiveReason = "stagnation"
)

const (
	ClosingStepInitialAttempt = "initial_attempt"
	ClosingStepOrderProcessed = "order_processed"

	EndingReasonImpasse   = "objection_impasse"
	EndingReasonRejected  = "closing_rejected"
	EndingReasonCompleted = "order_completed"
	EndingReasonFollowUp  = "follow_up_exhausted"

	NoSupportingContext = "[no supporting context available]"
)
