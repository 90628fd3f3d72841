package dialogue

import (
	"context"

	"github.com/cloudwego/eino/schema"
	"github.com/tbxark/salesagent/types"
)

type Request struct {
	Action           types.ActionType
	Parameters       types.ActionParameters
	State            *types.ConversationState
	RetrievedContext string
	History          []*schema.Message
	AgentName        string
	CompanyName      string
}

// Renderer turns a planned action into the text sent to the customer.
type Renderer interface {
	Render(ctx context.Context, req *Request) (string, error)
}
