package analyzer

import (
	"context"
	"errors"

	"github.com/cloudwego/eino/schema"
	"github.com/tbxark/salesagent/types"
)

var (
	ErrEmptyInput    = errors.New("empty customer input")
	ErrEmptyAnalysis = errors.New("understander returned no analysis")
)

type Request struct {
	CustomerText    string
	LastAgentAction *types.AgentAction
	History         []*schema.Message
	State           *types.ConversationState
}

// Understander is the text-understanding collaborator. Extracted questions
// only carry their core phrase; repetition is classified by the Analyzer.
type Understander interface {
	Understand(ctx context.Context, req *Request) (*types.TurnAnalysis, error)
}

// RepetitionChecker judges whether two questions ask the same thing.
type RepetitionChecker interface {
	IsRepetition(ctx context.Context, newQuestion, loggedQuestion string) (bool, error)
}
