// Package fakemodel provides a scripted eino chat model for tests.
package fakemodel

import (
	"context"
	"errors"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

var _ model.ToolCallingChatModel = (*ChatModel)(nil)

// ChatModel replays Responses in order; the last response is repeated once
// the script runs out. A non-nil Err fails every call.
type ChatModel struct {
	mu        sync.Mutex
	Responses []*schema.Message
	Err       error
	calls     [][]*schema.Message
}

func New(responses ...*schema.Message) *ChatModel {
	return &ChatModel{Responses: responses}
}

func Failing(err error) *ChatModel {
	return &ChatModel{Err: err}
}

func (m *ChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, input)
	if m.Err != nil {
		return nil, m.Err
	}
	if len(m.Responses) == 0 {
		return nil, errors.New("fakemodel: no scripted response")
	}
	idx := len(m.calls) - 1
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	}
	return m.Responses[idx], nil
}

func (m *ChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func (m *ChatModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	return m, nil
}

// Calls returns the prompts received so far.
func (m *ChatModel) Calls() [][]*schema.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]*schema.Message, len(m.calls))
	copy(out, m.calls)
	return out
}

// ToolCall builds an assistant message calling name with args encoded as JSON.
func ToolCall(name string, args any) *schema.Message {
	encoded, err := sonic.MarshalString(args)
	if err != nil {
		panic(err)
	}
	return &schema.Message{
		Role: schema.Assistant,
		ToolCalls: []schema.ToolCall{{
			ID:   "call_" + name,
			Type: "function",
			Function: schema.FunctionCall{
				Name:      name,
				Arguments: encoded,
			},
		}},
	}
}

// Text builds a plain assistant message.
func Text(content string) *schema.Message {
	return schema.AssistantMessage(content, nil)
}
