package dialogue

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

const defaultLang = "Brazilian Portuguese"

// DefaultRenderSystemPromptTemplate is the default system prompt template used by
// ToolBasedRenderer. The template may contain a single "%s" placeholder for the language.
const DefaultRenderSystemPromptTemplate = `You are a consultative sales assistant chatting with a customer over a messaging app.

Write the next message for the action you are given:
- Follow the action guidance and use its parameters; do not perform any other action.
- Sound like a helpful person, not a script. Keep it to two or three short sentences.
- Only state product facts that appear in the supporting context. Never invent prices, deadlines or features.
- Do not use lists or markdown.
- Reply in %s.
`

type ToolBasedRenderer struct {
	Lang                 string
	systemPrompt         string
	systemPromptTemplate string
	chatModel            model.BaseChatModel
}

type rendererOptions struct {
	lang                 string
	systemPrompt         string
	systemPromptTemplate string
}

type RendererOption func(*rendererOptions)

// WithRenderLang sets the language used by the default system prompt template.
func WithRenderLang(lang string) RendererOption {
	return func(o *rendererOptions) {
		o.lang = lang
	}
}

// WithRenderSystemPrompt overrides the system prompt used by ToolBasedRenderer.
func WithRenderSystemPrompt(systemPrompt string) RendererOption {
	return func(o *rendererOptions) {
		o.systemPrompt = systemPrompt
	}
}

// WithRenderSystemPromptTemplate overrides the system prompt template used by ToolBasedRenderer.
// If the template contains "%s", it will be formatted with the language.
func WithRenderSystemPromptTemplate(systemPromptTemplate string) RendererOption {
	return func(o *rendererOptions) {
		o.systemPromptTemplate = systemPromptTemplate
	}
}

func NewToolBasedRenderer(chatModel model.BaseChatModel, opts ...RendererOption) *ToolBasedRenderer {
	options := rendererOptions{
		lang:                 defaultLang,
		systemPromptTemplate: DefaultRenderSystemPromptTemplate,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	if options.lang == "" {
		options.lang = defaultLang
	}
	return &ToolBasedRenderer{
		Lang:                 options.lang,
		systemPrompt:         options.systemPrompt,
		systemPromptTemplate: options.systemPromptTemplate,
		chatModel:            chatModel,
	}
}

func (r *ToolBasedRenderer) Render(ctx context.Context, req *Request) (string, error) {
	response, err := r.chatModel.Generate(ctx, r.buildPrompt(req))
	if err != nil {
		return "", fmt.Errorf("LLM call failed: %w", err)
	}
	return strings.TrimSpace(response.Content), nil
}

func (r *ToolBasedRenderer) buildPrompt(req *Request) []*schema.Message {
	systemPrompt := r.systemPrompt
	if systemPrompt == "" {
		tpl := r.systemPromptTemplate
		if tpl == "" {
			tpl = DefaultRenderSystemPromptTemplate
		}
		if strings.Contains(tpl, "%s") {
			systemPrompt = fmt.Sprintf(tpl, r.Lang)
		} else {
			systemPrompt = tpl
		}
	}
	return []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(formatRequest(req)),
	}
}
