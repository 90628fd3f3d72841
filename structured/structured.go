package structured

import (
	"context"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"
)

// ErrNoToolCall is returned when the model answered in prose instead of
// calling the forced tool.
var ErrNoToolCall = errors.New("no tool call in model response")

type PromptBuilder[TInput any] func(ctx context.Context, input TInput) ([]*schema.Message, error)

// Validator checks a decoded tool output; a non-nil error rejects it.
type Validator[TOutput any] func(out *TOutput) error

// Chain forces the chat model to call a single tool whose arguments schema is
// derived from TOutput, then decodes those arguments as the result.
type Chain[TInput, TOutput any] struct {
	PromptBuilder PromptBuilder[TInput]
	ChatModel     model.ToolCallingChatModel
	ToolInfo      *schema.ToolInfo
	Validate      Validator[TOutput]
}

func NewChain[TInput, TOutput any](
	chatModel model.ToolCallingChatModel,
	promptBuilder PromptBuilder[TInput],
	toolName string,
	toolDesc string,
	validate Validator[TOutput],
) (*Chain[TInput, TOutput], error) {
	if chatModel == nil {
		return nil, errors.New("chat model is required")
	}
	if promptBuilder == nil {
		return nil, errors.New("prompt builder is required")
	}
	toolInfo, err := utils.GoStruct2ToolInfo[TOutput](toolName, toolDesc)
	if err != nil {
		return nil, fmt.Errorf("convert tool info failed: %w", err)
	}
	return &Chain[TInput, TOutput]{
		PromptBuilder: promptBuilder,
		ChatModel:     chatModel,
		ToolInfo:      toolInfo,
		Validate:      validate,
	}, nil
}

func (s *Chain[TInput, TOutput]) Invoke(ctx context.Context, input TInput) (*TOutput, error) {
	messages, err := s.PromptBuilder(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("build prompt failed: %w", err)
	}

	response, err := s.ChatModel.Generate(ctx, messages,
		model.WithTools([]*schema.ToolInfo{s.ToolInfo}),
		model.WithToolChoice(schema.ToolChoiceForced, s.ToolInfo.Name),
	)
	if err != nil {
		return nil, fmt.Errorf("call model failed: %w", err)
	}
	return s.decode(response)
}

func (s *Chain[TInput, TOutput]) decode(msg *schema.Message) (*TOutput, error) {
	if msg == nil {
		return nil, ErrNoToolCall
	}
	var args string
	for _, call := range msg.ToolCalls {
		if call.Function.Name == "" || call.Function.Name == s.ToolInfo.Name {
			args = call.Function.Arguments
			break
		}
	}
	if args == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoToolCall, msg.Content)
	}

	var result TOutput
	if err := sonic.UnmarshalString(args, &result); err != nil {
		return nil, fmt.Errorf("parse ToolCall arguments failed: %w", err)
	}
	if s.Validate != nil {
		if err := s.Validate(&result); err != nil {
			return nil, fmt.Errorf("invalid %s output: %w", s.ToolInfo.Name, err)
		}
	}
	return &result, nil
}

func (s *Chain[TInput, TOutput]) GetToolInfo() *schema.ToolInfo {
	return s.ToolInfo
}
