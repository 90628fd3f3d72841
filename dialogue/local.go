package dialogue

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tbxark/salesagent/types"
)

var spinQuestions = map[types.SpinType]string{
	types.SpinSituation:   "Para eu entender melhor, como vocês trabalham hoje?",
	types.SpinProblem:     "E qual tem sido a maior dificuldade nesse processo?",
	types.SpinImplication: "Como essa dificuldade tem afetado os resultados de vocês?",
	types.SpinNeedPayoff:  "Se isso estivesse resolvido, o que mudaria para vocês?",
}

// LocalRenderer renders actions from fixed Brazilian Portuguese templates.
type LocalRenderer struct {
	AgentName   string
	CompanyName string
}

func (r *LocalRenderer) Render(ctx context.Context, req *Request) (string, error) {
	p := req.Parameters
	name := firstNonEmpty(req.AgentName, r.AgentName, "sua assistente")
	company := firstNonEmpty(req.CompanyName, r.CompanyName, "nossa empresa")

	switch req.Action {
	case types.ActionGenerateGreeting:
		return fmt.Sprintf("Olá! Eu sou %s, da %s. Como posso ajudar você hoje?", name, company), nil
	case types.ActionAskSpinQuestion:
		if q, ok := spinQuestions[p.SpinType]; ok {
			return q, nil
		}
		return spinQuestions[types.SpinSituation], nil
	case types.ActionAnswerDirectQuestion:
		if !hasContext(req.RetrievedContext) {
			return fmt.Sprintf("Boa pergunta sobre \"%s\". Vou confirmar essa informação e já te retorno.", p.QuestionText), nil
		}
		return fmt.Sprintf("Sobre \"%s\": %s", p.QuestionText, strings.TrimSpace(req.RetrievedContext)), nil
	case types.ActionAskClarifyingQuestion:
		return "Não tenho certeza se entendi. Pode me contar um pouco mais?", nil
	case types.ActionGenerateRebuttal:
		text := fmt.Sprintf("Entendo sua preocupação com \"%s\".", p.ObjectionText)
		if hasContext(req.RetrievedContext) {
			text += " " + strings.TrimSpace(req.RetrievedContext)
		}
		return text + " Isso ajuda?", nil
	case types.ActionAcknowledgeAndTransition:
		if p.Reason == types.EndingReasonImpasse {
			return fmt.Sprintf("Respeito sua posição sobre \"%s\". Fico à disposição se mudar de ideia.", p.ObjectionText), nil
		}
		return fmt.Sprintf("Entendi! Voltando a %s...", p.InterruptedTopic), nil
	case types.ActionPresentSolutionOffer:
		if p.ProductName == "" {
			return fmt.Sprintf("Pelo que você contou, temos uma solução para %s. Posso te mostrar?", p.KeyBenefit), nil
		}
		return fmt.Sprintf("Acho que o %s é ideal para você: %s. O investimento é de R$ %.2f %s. O que acha?", p.ProductName, p.KeyBenefit, p.Price, p.PriceInfo), nil
	case types.ActionInitiateClosing:
		return fmt.Sprintf("Que tal seguirmos com o %s?", p.ProductName), nil
	case types.ActionConfirmOrderDetails:
		return fmt.Sprintf("Confirmando: %d x %s por R$ %.2f %s. Está correto?", p.Quantity, p.ProductName, p.Price, p.PriceInfo), nil
	case types.ActionProcessOrderConfirmation:
		return fmt.Sprintf("Perfeito! Seu pedido do %s foi registrado. Você receberá os próximos passos em breve.", p.ProductName), nil
	case types.ActionHandleClosingCorrection:
		return "Claro! O que você gostaria de ajustar no pedido?", nil
	case types.ActionGenerateFarewell:
		return "Obrigado pela conversa! Fico à disposição sempre que precisar.", nil
	case types.ActionSendFollowUpMessage:
		return fmt.Sprintf("Oi! Passando para saber se ainda posso ajudar com %s.", p.InterruptedTopic), nil
	case types.ActionAskReengagementQuestion:
		return fmt.Sprintf("Ficou alguma dúvida sobre %s?", p.InterruptedTopic), nil
	case types.ActionApologizeFallback:
		return "Desculpe, tive um problema aqui. Pode repetir sua última mensagem?", nil
	default:
		return "", fmt.Errorf("no template for action %q", req.Action)
	}
}

func hasContext(ctx string) bool {
	ctx = strings.TrimSpace(ctx)
	return ctx != "" && ctx != types.NoSupportingContext
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// FailbackRenderer tries each renderer in order and returns the first
// non-empty text.
type FailbackRenderer struct {
	renderers []Renderer
}

func NewFailbackRenderer(renderers ...Renderer) *FailbackRenderer {
	return &FailbackRenderer{renderers: renderers}
}

func (r *FailbackRenderer) Render(ctx context.Context, req *Request) (string, error) {
	var lastErr error
	for _, renderer := range r.renderers {
		text, err := renderer.Render(ctx, req)
		if err == nil && strings.TrimSpace(text) != "" {
			return text, nil
		}
		if err == nil {
			err = errors.New("empty render")
		}
		lastErr = err
	}
	return "", fmt.Errorf("all renderers failed: %w", lastErr)
}
