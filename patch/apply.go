package patch

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/tbxark/salesagent/types"
)

// Apply runs ops against a copy of state. Replace on a missing path becomes
// add, and remove on a missing path is dropped.
func Apply(state *types.ConversationState, ops []Operation) (*types.ConversationState, error) {
	if len(ops) == 0 {
		return state.Clone(), nil
	}
	doc, err := sonic.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("marshal state: %w", err)
	}
	ops, err = normalize(doc, ops)
	if err != nil {
		return nil, err
	}
	raw, err := sonic.Marshal(ops)
	if err != nil {
		return nil, fmt.Errorf("marshal operations: %w", err)
	}
	p, err := jsonpatch.DecodePatch(raw)
	if err != nil {
		return nil, fmt.Errorf("decode patch: %w", err)
	}
	modified, err := p.Apply(doc)
	if err != nil {
		return nil, fmt.Errorf("apply patch: %w", err)
	}
	var out types.ConversationState
	if err := sonic.Unmarshal(modified, &out); err != nil {
		return nil, fmt.Errorf("patched state is not a conversation state: %w", err)
	}
	return &out, nil
}

func normalize(doc []byte, ops []Operation) ([]Operation, error) {
	var root any
	if err := sonic.Unmarshal(doc, &root); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	out := make([]Operation, 0, len(ops))
	for _, op := range ops {
		exists := lookup(root, op.Path)
		switch {
		case op.Op == OperationReplace && !exists:
			op.Op = OperationAdd
		case op.Op == OperationRemove && !exists:
			continue
		}
		out = append(out, op)
	}
	return out, nil
}

// lookup reports whether the JSON pointer resolves inside root.
func lookup(root any, pointer string) bool {
	if pointer == "" {
		return true
	}
	if !strings.HasPrefix(pointer, "/") {
		return false
	}
	cur := root
	for _, token := range strings.Split(pointer[1:], "/") {
		token = strings.NewReplacer("~1", "/", "~0", "~").Replace(token)
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[token]
			if !ok {
				return false
			}
			cur = next
		case []any:
			i, err := strconv.Atoi(token)
			if err != nil || i < 0 || i >= len(node) {
				return false
			}
			cur = node[i]
		default:
			return false
		}
	}
	return true
}
