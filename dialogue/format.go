package dialogue

import (
	"fmt"
	"strings"

	"github.com/tbxark/salesagent/types"
)

var actionGuidance = map[types.ActionType]string{
	types.ActionGenerateGreeting:         "Greet the customer warmly, introduce yourself and the company in one sentence, and invite them to share what brought them here.",
	types.ActionAskSpinQuestion:          "Ask exactly one discovery question of the given SPIN type (Situation, Problem, Implication or NeedPayoff) that builds on what the customer already told you.",
	types.ActionAnswerDirectQuestion:     "Answer the customer's question using only the supporting context. If the context is missing, say honestly that you will check and do not invent facts. If the customer is repeating a question you already answered, rephrase instead of repeating yourself.",
	types.ActionAskClarifyingQuestion:    "The customer's message was unclear. Ask one short question that helps them say what they mean.",
	types.ActionGenerateRebuttal:         "Acknowledge the objection with empathy, then address it with one concrete argument grounded in the supporting context. End with a light check-in question.",
	types.ActionAcknowledgeAndTransition: "Briefly acknowledge what the customer said and steer the conversation back to the interrupted topic. When the reason is an objection impasse, respect the customer's position and prepare to wrap up.",
	types.ActionPresentSolutionOffer:     "Present the product as the answer to the customer's main need, lead with the key benefit, mention the price and ask what they think.",
	types.ActionInitiateClosing:          "Propose moving forward with the order and ask for the customer's go-ahead.",
	types.ActionConfirmOrderDetails:      "Summarize the order (product, quantity, price) and ask the customer to confirm the details.",
	types.ActionProcessOrderConfirmation: "Confirm that the order is being processed and tell the customer what happens next.",
	types.ActionHandleClosingCorrection:  "The customer wants to change the order details. Ask what should be corrected.",
	types.ActionGenerateFarewell:         "Say goodbye politely and leave the door open for future contact.",
	types.ActionSendFollowUpMessage:      "The customer went quiet. Send a short, friendly nudge that reminds them of the topic without pressure.",
	types.ActionAskReengagementQuestion:  "The conversation stalled. Ask one open question that invites the customer back into the topic.",
	types.ActionApologizeFallback:        "Apologize briefly for the trouble and ask the customer to repeat their last message.",
}

func formatActionSection(action types.ActionType, params types.ActionParameters) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("# Action to perform:\n%s\n", action))
	if guidance, ok := actionGuidance[action]; ok {
		sb.WriteString(guidance)
		sb.WriteString("\n")
	}
	fields := []struct {
		name  string
		value string
	}{
		{"spin_type", string(params.SpinType)},
		{"question", params.QuestionText},
		{"repetition_status", string(params.RepetitionStatus)},
		{"vague_statement", params.VagueStatement},
		{"objection", params.ObjectionText},
		{"off_topic_text", params.OffTopicText},
		{"interrupted_topic", params.InterruptedTopic},
		{"reason", params.Reason},
		{"product", params.ProductName},
		{"key_benefit", params.KeyBenefit},
		{"price_info", params.PriceInfo},
		{"hint", params.Message},
	}
	var lines []string
	for _, f := range fields {
		if f.value != "" {
			lines = append(lines, fmt.Sprintf("- %s: %s", f.name, f.value))
		}
	}
	if params.AttemptNumber > 0 {
		lines = append(lines, fmt.Sprintf("- attempt: %d", params.AttemptNumber))
	}
	if params.Quantity > 0 {
		lines = append(lines, fmt.Sprintf("- quantity: %d", params.Quantity))
	}
	if params.Price > 0 {
		lines = append(lines, fmt.Sprintf("- price: %.2f", params.Price))
	}
	if params.FollowUpAttempt > 0 {
		lines = append(lines, fmt.Sprintf("- follow_up_attempt: %d", params.FollowUpAttempt))
	}
	if len(lines) > 0 {
		sb.WriteString("# Parameters:\n")
		sb.WriteString(strings.Join(lines, "\n"))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatIdentitySection(agentName, companyName string) string {
	if agentName == "" && companyName == "" {
		return ""
	}
	return fmt.Sprintf("# You are:\n%s from %s", agentName, companyName)
}

func formatHistorySection(req *Request) string {
	if len(req.History) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("# Recent conversation:\n")
	for _, msg := range req.History {
		sb.WriteString(fmt.Sprintf("%s: %s\n", msg.Role, msg.Content))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatRequest(req *Request) string {
	sections := []string{formatActionSection(req.Action, req.Parameters)}
	if s := formatIdentitySection(req.AgentName, req.CompanyName); s != "" {
		sections = append(sections, s)
	}
	if req.Action.NeedsSupportingFacts() {
		ctx := req.RetrievedContext
		if ctx == "" {
			ctx = types.NoSupportingContext
		}
		sections = append(sections, fmt.Sprintf("# Supporting context:\n%s", ctx))
	}
	if req.State != nil {
		sections = append(sections, types.FormatState(req.State))
	}
	if s := formatHistorySection(req); s != "" {
		sections = append(sections, s)
	}
	return strings.Join(sections, "\n\n")
}
