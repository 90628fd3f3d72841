package agent

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/adk"
	"github.com/cloudwego/eino/schema"
)

var _ adk.Agent = (*Agent)(nil)

// Agent exposes a Flow as an adk.Agent. The conversation is taken from the
// context (WithConversationID), falling back to the agent's default.
type Agent struct {
	name           string
	description    string
	conversationID string
	flow           *Flow
}

func NewAgent(name, description, conversationID string, flow *Flow) *Agent {
	return &Agent{
		name:           name,
		description:    description,
		conversationID: conversationID,
		flow:           flow,
	}
}

func (a *Agent) Name(ctx context.Context) string {
	return a.name
}

func (a *Agent) Description(ctx context.Context) string {
	return a.description
}

func (a *Agent) Run(ctx context.Context, input *adk.AgentInput, options ...adk.AgentRunOption) *adk.AsyncIterator[*adk.AgentEvent] {
	iter, gen := adk.NewAsyncIteratorPair[*adk.AgentEvent]()
	go func() {
		defer func() {
			e := recover()
			if e != nil {
				gen.Send(&adk.AgentEvent{
					Err: fmt.Errorf("recover from panic: %v", e),
				})
			}
			gen.Close()
		}()
		if input == nil || len(input.Messages) == 0 {
			gen.Send(&adk.AgentEvent{
				Err: fmt.Errorf("no messages in input"),
			})
			return
		}
		conversationID, ok := ConversationIDFromContext(ctx)
		if !ok || conversationID == "" {
			conversationID = a.conversationID
		}
		resp, err := a.flow.Invoke(ctx, &Request{
			ConversationID: conversationID,
			UserInput:      input.Messages[len(input.Messages)-1].Content,
		})
		if err != nil {
			gen.Send(&adk.AgentEvent{
				Err: fmt.Errorf("flow invoke failed: %w", err),
			})
			return
		}
		if resp.Message == "" {
			return
		}
		gen.Send(&adk.AgentEvent{
			Output: &adk.AgentOutput{
				MessageOutput: &adk.MessageVariant{
					IsStreaming: false,
					Message:     schema.AssistantMessage(resp.Message, nil),
					Role:        schema.Assistant,
				},
			},
		})
	}()
	return iter
}
