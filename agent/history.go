package agent

import (
	"context"

	"github.com/cloudwego/eino/schema"
)

type Trimmer interface {
	Trim(history []*schema.Message) []*schema.Message
}

// KeepSystemLastNTrimmer keeps all system messages and the last N non-system messages.
// When N <= 0, it keeps only system messages.
type KeepSystemLastNTrimmer struct {
	N int
}

func (t KeepSystemLastNTrimmer) Trim(history []*schema.Message) []*schema.Message {
	kept := 0
	out := make([]*schema.Message, 0, len(history))
	for i := len(history) - 1; i >= 0; i-- {
		m := history[i]
		switch {
		case m == nil:
		case m.Role == schema.System:
			out = append(out, m)
		case kept < t.N:
			out = append(out, m)
			kept++
		}
	}
	for l, r := 0, len(out)-1; l < r; l, r = l+1, r-1 {
		out[l], out[r] = out[r], out[l]
	}
	return out
}

type HistoryReadWriter interface {
	Load(ctx context.Context) ([]*schema.Message, error)
	Clear(ctx context.Context) error

	// Append loads history, appends msgs, trims, then saves. It returns the
	// retained window.
	Append(ctx context.Context, msgs ...*schema.Message) ([]*schema.Message, error)
}

// HistoryStore keeps the recent messages of each conversation.
type HistoryStore struct {
	store   Store[[]*schema.Message]
	trimmer Trimmer
}

func NewHistoryStore(core Cache[[]*schema.Message], trimmer Trimmer) *HistoryStore {
	return &HistoryStore{
		store:   NewStore(core, "salesagent:history", ConversationIDFromContext),
		trimmer: trimmer,
	}
}

// NewMemoryHistoryStore keeps the last window messages in process.
func NewMemoryHistoryStore(window int) *HistoryStore {
	return NewHistoryStore(NewMemoryCache[[]*schema.Message](), KeepSystemLastNTrimmer{N: window})
}

func (s *HistoryStore) Load(ctx context.Context) ([]*schema.Message, error) {
	hist, ok, err := s.store.Get(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return append([]*schema.Message{}, hist...), nil
}

func (s *HistoryStore) Clear(ctx context.Context) error {
	return s.store.Del(ctx)
}

func (s *HistoryStore) Append(ctx context.Context, msgs ...*schema.Message) ([]*schema.Message, error) {
	hist, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	for _, msg := range msgs {
		if msg != nil {
			hist = append(hist, msg)
		}
	}
	if s.trimmer != nil {
		hist = s.trimmer.Trim(hist)
	}
	if err := s.store.Set(ctx, hist); err != nil {
		return nil, err
	}
	return hist, nil
}

var _ HistoryReadWriter = (*HistoryStore)(nil)
