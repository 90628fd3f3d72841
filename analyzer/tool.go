package analyzer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/tbxark/salesagent/structured"
	"github.com/tbxark/salesagent/types"
)

const (
	analyzeTurnToolName        = "analyze_customer_turn"
	analyzeTurnToolDescription = "Record the structured reading of the customer's latest message."

	compareQuestionsToolName        = "compare_questions"
	compareQuestionsToolDescription = "Decide whether two customer questions ask for the same information."
)

// DefaultAnalyzeSystemPromptTemplate is the system prompt used by
// ToolBasedUnderstander. The template may contain a single "%s" placeholder
// for the tool name.
const DefaultAnalyzeSystemPromptTemplate = `
You are the listening half of a consultative sales assistant. Read the customer's latest message in the context of what the assistant said last and extract what the customer said.

Rules:
- extracted_questions: every question the customer asked, each reduced to a short lower-case core phrase without greetings or filler.
- extracted_objections: concerns that block a purchase (price, trust, timing, fit), quoted briefly in the customer's words.
- extracted_needs and extracted_pain_points: what the customer wants to achieve and what is hurting today.
- response_to_last_action: how the message relates to the assistant's last message. Use not_applicable when the assistant has not spoken yet.
- is_primarily_vague: the message is too unclear to act on.
- is_primarily_off_topic: the message is unrelated to the sale.
- overall_intent: the single best label for the whole message.

Never invent content the customer did not say. Leave lists empty when nothing applies.

Call the '%s' tool with the result.
`

// DefaultCompareSystemPromptTemplate is the system prompt used by
// ToolBasedRepetitionChecker.
const DefaultCompareSystemPromptTemplate = `
You compare two questions asked by the same customer during a sales conversation. Report is_repetition=true only when both questions ask for the same information, even if worded differently.

Call the '%s' tool with the result.
`

type PromptBuilder func(systemPrompt string) func(ctx context.Context, req *Request) ([]*schema.Message, error)

type understanderOptions struct {
	systemPromptTemplate string
	promptBuilder        PromptBuilder
}

type UnderstanderOption func(*understanderOptions)

func WithAnalyzeSystemPromptTemplate(systemPromptTemplate string) UnderstanderOption {
	return func(o *understanderOptions) {
		o.systemPromptTemplate = systemPromptTemplate
	}
}

func WithAnalyzePromptBuilder(promptBuilder PromptBuilder) UnderstanderOption {
	return func(o *understanderOptions) {
		o.promptBuilder = promptBuilder
	}
}

func newUnderstanderOptions(opts ...UnderstanderOption) *understanderOptions {
	opt := understanderOptions{
		systemPromptTemplate: DefaultAnalyzeSystemPromptTemplate,
		promptBuilder: func(systemPrompt string) func(ctx context.Context, req *Request) ([]*schema.Message, error) {
			return func(ctx context.Context, req *Request) ([]*schema.Message, error) {
				return []*schema.Message{
					schema.SystemMessage(systemPrompt),
					schema.UserMessage(FormatRequest(req)),
				}, nil
			}
		},
	}
	for _, o := range opts {
		o(&opt)
	}
	return &opt
}

// FormatRequest renders the analysis request as the user prompt.
func FormatRequest(req *Request) string {
	var sections []string
	if req.State != nil {
		sections = append(sections, types.FormatState(req.State))
		if log := types.FormatQuestionLog(req.State.QuestionLog); log != "" {
			sections = append(sections, log)
		}
	}
	if len(req.History) > 0 {
		var buf strings.Builder
		buf.WriteString("# Recent conversation:\n")
		for _, msg := range req.History {
			buf.WriteString(fmt.Sprintf("%s: %s\n", msg.Role, msg.Content))
		}
		sections = append(sections, strings.TrimRight(buf.String(), "\n"))
	}
	last := "(the assistant has not spoken yet)"
	if req.LastAgentAction != nil && req.LastAgentAction.RenderedText != "" {
		last = req.LastAgentAction.RenderedText
	}
	sections = append(sections,
		fmt.Sprintf("# Assistant's last message:\n%s", last),
		fmt.Sprintf("# Customer's latest message:\n%s", req.CustomerText),
	)
	return strings.Join(sections, "\n\n")
}

type certaintyOutput struct {
	Product int `json:"product,omitempty" jsonschema:"description=Customer certainty about the product from 0 to 10"`
	Agent   int `json:"agent,omitempty" jsonschema:"description=Customer certainty about the assistant from 0 to 10"`
	Company int `json:"company,omitempty" jsonschema:"description=Customer certainty about the company from 0 to 10"`
}

type analysisOutput struct {
	OverallIntent        types.Intent       `json:"overall_intent" jsonschema:"required,enum=greeting,enum=farewell,enum=questioning,enum=stating_info,enum=objection,enum=need_or_pain,enum=responding_to_agent,enum=vague,enum=off_topic,enum=positive_feedback,enum=negative_feedback,enum=requesting_clarification,enum=request_next_step,description=The dominant intent of the message"`
	ExtractedQuestions   []string           `json:"extracted_questions" jsonschema:"description=Core phrase of each question the customer asked"`
	ExtractedObjections  []string           `json:"extracted_objections" jsonschema:"description=Objections raised in the message"`
	ExtractedNeeds       []string           `json:"extracted_needs" jsonschema:"description=Needs stated in the message"`
	ExtractedPainPoints  []string           `json:"extracted_pain_points" jsonschema:"description=Pain points stated in the message"`
	ResponseToLastAction types.ResponseType `json:"response_to_last_action" jsonschema:"required,enum=answered_clearly,enum=partially_answered,enum=ignored,enum=acknowledged,enum=not_applicable"`
	IsPrimarilyVague     bool               `json:"is_primarily_vague"`
	IsPrimarilyOffTopic  bool               `json:"is_primarily_off_topic"`
	Certainty            *certaintyOutput   `json:"certainty,omitempty"`
}

var validIntents = map[types.Intent]bool{
	types.IntentGreeting: true, types.IntentFarewell: true, types.IntentQuestioning: true,
	types.IntentStatingInfo: true, types.IntentObjection: true, types.IntentNeedOrPain: true,
	types.IntentRespondingToAgent: true, types.IntentVague: true, types.IntentOffTopic: true,
	types.IntentPositiveFeedback: true, types.IntentNegativeFeedback: true,
	types.IntentRequestingClarification: true, types.IntentRequestNextStep: true,
}

var validResponses = map[types.ResponseType]bool{
	types.ResponseAnsweredClearly: true, types.ResponsePartiallyAnswered: true,
	types.ResponseIgnored: true, types.ResponseAcknowledged: true, types.ResponseNotApplicable: true,
}

func validateAnalysis(out *analysisOutput) error {
	var errs []error
	if !validIntents[out.OverallIntent] {
		errs = append(errs, fmt.Errorf("unknown intent %q", out.OverallIntent))
	}
	if out.ResponseToLastAction != "" && !validResponses[out.ResponseToLastAction] {
		errs = append(errs, fmt.Errorf("unknown response type %q", out.ResponseToLastAction))
	}
	return errors.Join(errs...)
}

func (o *analysisOutput) toAnalysis() *types.TurnAnalysis {
	analysis := &types.TurnAnalysis{
		Intent:               o.OverallIntent,
		Objections:           o.ExtractedObjections,
		Needs:                o.ExtractedNeeds,
		PainPoints:           o.ExtractedPainPoints,
		ResponseToLastAction: o.ResponseToLastAction,
		PrimarilyVague:       o.IsPrimarilyVague,
		PrimarilyOffTopic:    o.IsPrimarilyOffTopic,
		Certainty:            map[string]int{},
	}
	for _, q := range o.ExtractedQuestions {
		analysis.Questions = append(analysis.Questions, types.ExtractedQuestion{CoreText: q})
	}
	if o.Certainty != nil {
		for key, value := range map[string]int{"product": o.Certainty.Product, "agent": o.Certainty.Agent, "company": o.Certainty.Company} {
			if value > 0 {
				analysis.Certainty[key] = min(value, 10)
			}
		}
	}
	return analysis
}

type ToolBasedUnderstander struct {
	chain *structured.Chain[*Request, analysisOutput]
}

func NewToolBasedUnderstander(chatModel model.ToolCallingChatModel, opts ...UnderstanderOption) (*ToolBasedUnderstander, error) {
	options := newUnderstanderOptions(opts...)
	chain, err := structured.NewChain[*Request, analysisOutput](
		chatModel,
		options.promptBuilder(fmt.Sprintf(options.systemPromptTemplate, analyzeTurnToolName)),
		analyzeTurnToolName,
		analyzeTurnToolDescription,
		validateAnalysis,
	)
	if err != nil {
		return nil, err
	}
	return &ToolBasedUnderstander{chain: chain}, nil
}

func (u *ToolBasedUnderstander) Understand(ctx context.Context, req *Request) (*types.TurnAnalysis, error) {
	result, err := u.chain.Invoke(ctx, req)
	if err != nil {
		return nil, err
	}
	return result.toAnalysis(), nil
}

type compareInput struct {
	NewQuestion    string
	LoggedQuestion string
}

type compareOutput struct {
	IsRepetition bool `json:"is_repetition" jsonschema:"required,description=True when both questions ask for the same information"`
}

type ToolBasedRepetitionChecker struct {
	chain *structured.Chain[compareInput, compareOutput]
}

func NewToolBasedRepetitionChecker(chatModel model.ToolCallingChatModel) (*ToolBasedRepetitionChecker, error) {
	systemPrompt := fmt.Sprintf(DefaultCompareSystemPromptTemplate, compareQuestionsToolName)
	chain, err := structured.NewChain[compareInput, compareOutput](
		chatModel,
		func(ctx context.Context, in compareInput) ([]*schema.Message, error) {
			return []*schema.Message{
				schema.SystemMessage(systemPrompt),
				schema.UserMessage(fmt.Sprintf("# Earlier question:\n%s\n\n# New question:\n%s", in.LoggedQuestion, in.NewQuestion)),
			}, nil
		},
		compareQuestionsToolName,
		compareQuestionsToolDescription,
		nil,
	)
	if err != nil {
		return nil, err
	}
	return &ToolBasedRepetitionChecker{chain: chain}, nil
}

func (c *ToolBasedRepetitionChecker) IsRepetition(ctx context.Context, newQuestion, loggedQuestion string) (bool, error) {
	if NormalizeQuestion(newQuestion) == NormalizeQuestion(loggedQuestion) {
		return true, nil
	}
	result, err := c.chain.Invoke(ctx, compareInput{NewQuestion: newQuestion, LoggedQuestion: loggedQuestion})
	if err != nil {
		return false, err
	}
	return result.IsRepetition, nil
}
