// Package dispatch executes a planned action and commits the bookkeeping the
// action owes to the conversation state.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/schema"
	"github.com/tbxark/salesagent/dialogue"
	"github.com/tbxark/salesagent/types"
)

const (
	DefaultFallbackMessage = "Desculpe, não consegui formular uma resposta agora. Pode me contar um pouco mais?"
	DefaultApologyMessage  = "Desculpe, tive um problema para entender sua mensagem. Pode repetir, por favor?"
)

// FallbackRecorder counts degraded paths.
type FallbackRecorder interface {
	RecordFallback(kind string)
}

type DispatcherConfig struct {
	ChunkLimit          int
	SimilarityThreshold float64
	// Scope selects the knowledge partition of the account, passed to the
	// retriever as its sub index.
	Scope           string
	FallbackMessage string
	ApologyMessage  string
	AgentName       string
	CompanyName     string
}

type DispatcherOption func(*Dispatcher)

// WithRetriever enables supporting facts for the actions that need them.
func WithRetriever(r retriever.Retriever) DispatcherOption {
	return func(d *Dispatcher) {
		d.retriever = r
	}
}

func WithFallbackRecorder(r FallbackRecorder) DispatcherOption {
	return func(d *Dispatcher) {
		d.recorder = r
	}
}

func WithDispatcherLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

type Dispatcher struct {
	cfg       DispatcherConfig
	renderer  dialogue.Renderer
	retriever retriever.Retriever
	recorder  FallbackRecorder
	logger    *slog.Logger
}

func NewDispatcher(renderer dialogue.Renderer, cfg DispatcherConfig, opts ...DispatcherOption) (*Dispatcher, error) {
	if renderer == nil {
		return nil, fmt.Errorf("dispatcher: renderer is required")
	}
	if cfg.FallbackMessage == "" {
		cfg.FallbackMessage = DefaultFallbackMessage
	}
	if cfg.ApologyMessage == "" {
		cfg.ApologyMessage = DefaultApologyMessage
	}
	d := &Dispatcher{cfg: cfg, renderer: renderer, logger: slog.Default()}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

type Request struct {
	State      *types.ConversationState
	Action     types.ActionType
	Parameters types.ActionParameters
	History    []*schema.Message
}

type Result struct {
	Action           *types.AgentAction
	RetrievedContext string
	RawGeneration    string
	Fallback         bool
}

// Dispatch renders the planned action. It never fails: retrieval and render
// problems degrade to the no-context marker and the fallback message. A
// request without an action yields a nil Result.
func (d *Dispatcher) Dispatch(ctx context.Context, req *Request) *Result {
	if req.Action == "" {
		return nil
	}
	result := &Result{}
	if req.Action.NeedsSupportingFacts() {
		result.RetrievedContext = d.retrieve(ctx, req)
	}

	text, err := d.renderer.Render(ctx, &dialogue.Request{
		Action:           req.Action,
		Parameters:       req.Parameters,
		State:            req.State,
		RetrievedContext: result.RetrievedContext,
		History:          req.History,
		AgentName:        d.cfg.AgentName,
		CompanyName:      d.cfg.CompanyName,
	})
	result.RawGeneration = text
	if err != nil || strings.TrimSpace(text) == "" {
		d.logger.Warn("render failed, using fallback message",
			"conversation_id", conversationID(req.State), "action", req.Action, "error", err)
		d.recordFallback("render")
		text = d.cfg.FallbackMessage
		if req.Action == types.ActionApologizeFallback {
			text = d.cfg.ApologyMessage
		}
		result.Fallback = true
	}
	result.Action = &types.AgentAction{
		Type:         req.Action,
		Parameters:   req.Parameters,
		RenderedText: strings.TrimSpace(text),
	}
	return result
}

func (d *Dispatcher) retrieve(ctx context.Context, req *Request) string {
	if d.retriever == nil {
		return types.NoSupportingContext
	}
	query := Query(req.Action, req.Parameters)
	opts := []retriever.Option{retriever.WithTopK(d.cfg.ChunkLimit)}
	if d.cfg.SimilarityThreshold > 0 {
		opts = append(opts, retriever.WithScoreThreshold(d.cfg.SimilarityThreshold))
	}
	if d.cfg.Scope != "" {
		opts = append(opts, retriever.WithSubIndex(d.cfg.Scope))
	}
	docs, err := d.retriever.Retrieve(ctx, query, opts...)
	if err != nil {
		d.logger.Warn("retrieval failed", "conversation_id", conversationID(req.State), "query", query, "error", err)
		d.recordFallback("retrieval")
		return types.NoSupportingContext
	}
	var chunks []string
	for _, doc := range docs {
		if doc != nil && strings.TrimSpace(doc.Content) != "" {
			chunks = append(chunks, strings.TrimSpace(doc.Content))
		}
		if d.cfg.ChunkLimit > 0 && len(chunks) == d.cfg.ChunkLimit {
			break
		}
	}
	if len(chunks) == 0 {
		return types.NoSupportingContext
	}
	return strings.Join(chunks, "\n\n")
}

// Query derives the retrieval query for an action.
func Query(action types.ActionType, params types.ActionParameters) string {
	switch action {
	case types.ActionAnswerDirectQuestion:
		return params.QuestionText
	case types.ActionGenerateRebuttal:
		return fmt.Sprintf("how to address the objection: %s", params.ObjectionText)
	case types.ActionPresentSolutionOffer:
		return strings.TrimSpace(params.ProductName + " " + params.KeyBenefit)
	default:
		return ""
	}
}

func (d *Dispatcher) recordFallback(kind string) {
	if d.recorder != nil {
		d.recorder.RecordFallback(kind)
	}
}

func conversationID(state *types.ConversationState) string {
	if state == nil {
		return ""
	}
	return state.ConversationID
}
