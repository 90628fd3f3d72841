package agent

import (
	"context"

	"github.com/tbxark/salesagent/types"
)

type conversationKeyContext struct{}

// WithConversationID routes stores in ctx to the given conversation.
func WithConversationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, conversationKeyContext{}, id)
}

// ConversationIDFromContext gets the conversation routing key from ctx.
func ConversationIDFromContext(ctx context.Context) (string, bool) {
	value := ctx.Value(conversationKeyContext{})
	if value == nil {
		return "", false
	}
	key, ok := value.(string)
	return key, ok
}

// StateReadWriter is the checkpoint store of conversation states.
type StateReadWriter interface {
	// Load returns the committed state, or a fresh one on first contact.
	Load(ctx context.Context) (*types.ConversationState, error)
	Save(ctx context.Context, state *types.ConversationState) error
	Remove(ctx context.Context) error
}

type StateStore struct {
	store Store[*types.ConversationState]
}

func NewStateStore(core Cache[*types.ConversationState]) *StateStore {
	return &StateStore{store: NewStore(core, "salesagent:state", ConversationIDFromContext)}
}

func NewMemoryStateStore() *StateStore {
	return NewStateStore(NewMemoryCache[*types.ConversationState]())
}

func (s *StateStore) Load(ctx context.Context) (*types.ConversationState, error) {
	state, ok, err := s.store.Get(ctx)
	if err != nil {
		return nil, err
	}
	if !ok || state == nil {
		id, _ := ConversationIDFromContext(ctx)
		return types.NewConversationState(id), nil
	}
	return state.Clone(), nil
}

func (s *StateStore) Save(ctx context.Context, state *types.ConversationState) error {
	return s.store.Set(ctx, state.Clone())
}

func (s *StateStore) Remove(ctx context.Context) error {
	return s.store.Del(ctx)
}

var _ StateReadWriter = (*StateStore)(nil)
