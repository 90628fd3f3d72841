package testcases

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"github.com/tbxark/salesagent/agent"
	"github.com/tbxark/salesagent/analyzer"
	"github.com/tbxark/salesagent/config"
	"github.com/tbxark/salesagent/metrics"
	"github.com/tbxark/salesagent/types"
)

// ScriptedUnderstander answers with a fixed analysis for known messages and
// falls back to the keyword understander for everything else.
type ScriptedUnderstander struct {
	Script   map[string]*types.TurnAnalysis
	fallback *analyzer.LocalUnderstander
}

func NewScriptedUnderstander(script map[string]*types.TurnAnalysis) *ScriptedUnderstander {
	return &ScriptedUnderstander{Script: script, fallback: analyzer.NewLocalUnderstander()}
}

func (s *ScriptedUnderstander) Understand(ctx context.Context, req *analyzer.Request) (*types.TurnAnalysis, error) {
	if a, ok := s.Script[strings.TrimSpace(req.CustomerText)]; ok {
		return a.Clone(), nil
	}
	return s.fallback.Understand(ctx, req)
}

func Config() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Engine.CompanyName = "Loja Exemplo"
	cfg.Offerings = []types.Offering{
		{Name: "Plano Básico", Description: "Catálogo online para pequenas lojas", Benefits: []string{"Sua loja no ar em minutos"}, Keywords: []string{"catálogo", "vitrine"}, Price: 49.9, PriceInfo: "preço por mês"},
		{Name: "Plano Estoque", Description: "Controle de estoque integrado às vendas", Benefits: []string{"Nunca mais venda sem estoque"}, Keywords: []string{"estoque", "inventário", "controle"}, Price: 99.9, PriceInfo: "preço por mês"},
	}
	return cfg
}

// Conversation drives one conversation through a Flow.
type Conversation struct {
	t    *testing.T
	ID   string
	Flow *agent.Flow
	Reg  *prometheus.Registry
}

func NewConversation(t *testing.T, understander analyzer.Understander) *Conversation {
	t.Helper()
	cfg := Config()
	c := agent.NewLocalCollaborators(cfg)
	if understander != nil {
		c.Understander = understander
	}
	return newConversation(t, cfg, c)
}

// NewConversationWith drives a conversation on custom collaborators.
func NewConversationWith(t *testing.T, c agent.Collaborators) *Conversation {
	t.Helper()
	return newConversation(t, Config(), c)
}

func newConversation(t *testing.T, cfg *config.Config, c agent.Collaborators) *Conversation {
	t.Helper()
	reg := prometheus.NewRegistry()
	flow, err := agent.NewFlowFromConfig(cfg, c, agent.NewMemoryStores(cfg.Engine.HistoryWindow), metrics.NewCollector("salesagent", reg))
	require.NoError(t, err)
	return &Conversation{t: t, ID: "conv-" + strings.ReplaceAll(t.Name(), "/", "-"), Flow: flow, Reg: reg}
}

func (c *Conversation) Say(text string) *agent.Response {
	c.t.Helper()
	resp, err := c.Flow.Invoke(context.Background(), &agent.Request{ConversationID: c.ID, UserInput: text})
	require.NoError(c.t, err)
	c.t.Logf("customer: %s\nagent[%s]: %s", text, resp.Metadata["action"], resp.Message)
	return resp
}

func (c *Conversation) Timeout() *agent.Response {
	c.t.Helper()
	resp, err := c.Flow.Invoke(context.Background(), &agent.Request{ConversationID: c.ID, Trigger: types.TriggerFollowUpTimeout})
	require.NoError(c.t, err)
	c.t.Logf("timeout\nagent[%s]: %s", resp.Metadata["action"], resp.Message)
	return resp
}

// NewLiveConversation backs every collaborator with a real chat model. It is
// skipped unless SALESAGENT_RUN_LIVE_TESTS=1 and an API key is configured.
func NewLiveConversation(t *testing.T) *Conversation {
	t.Helper()
	if os.Getenv("SALESAGENT_RUN_LIVE_TESTS") != "1" {
		t.Skip("set SALESAGENT_RUN_LIVE_TESTS=1 to run live LLM tests")
	}
	cfg, err := config.NewLoader().WithValidator(func(c *config.Config) error {
		c.Offerings = Config().Offerings
		return nil
	}).Load()
	require.NoError(t, err)
	if cfg.LLM.APIKey == "" {
		t.Skip("SALESAGENT_LLM_API_KEY is empty")
	}
	chatModel, err := openai.NewChatModel(context.Background(), &openai.ChatModelConfig{
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.Model,
		BaseURL: cfg.LLM.BaseURL,
	})
	require.NoError(t, err)
	c, err := agent.NewToolBasedCollaborators(chatModel, cfg)
	require.NoError(t, err)
	return newConversation(t, cfg, c)
}
