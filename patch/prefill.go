package patch

import (
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/tbxark/salesagent/types"
)

// Seed is customer data known before the conversation starts, e.g. from a
// CRM record.
type Seed struct {
	Profile  types.CustomerProfile `json:"customer_profile"`
	Proposal *types.Proposal       `json:"active_proposal,omitempty"`
}

// SeedOperations returns the operations that bring state in line with every
// non-empty field of seed. Empty seed fields never erase existing data.
func SeedOperations(state *types.ConversationState, seed Seed) ([]Operation, error) {
	current, err := toMap(state)
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}
	wanted, err := toMap(seed)
	if err != nil {
		return nil, fmt.Errorf("encode seed: %w", err)
	}
	var ops []Operation
	diffInto("", current, wanted, &ops)
	slices.SortStableFunc(ops, func(a, b Operation) int {
		return strings.Compare(a.Path, b.Path)
	})
	return ops, nil
}

func toMap(v any) (map[string]any, error) {
	raw, err := sonic.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := sonic.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func diffInto(prefix string, current, wanted map[string]any, ops *[]Operation) {
	for key, want := range wanted {
		if empty(want) {
			continue
		}
		path := prefix + "/" + escape(key)
		have, exists := current[key]

		if wantMap, ok := want.(map[string]any); ok {
			if haveMap, ok := have.(map[string]any); ok {
				diffInto(path, haveMap, wantMap, ops)
				continue
			}
			*ops = append(*ops, Operation{Op: OperationReplace, Path: path, Value: want})
			continue
		}
		switch {
		case !exists:
			*ops = append(*ops, Operation{Op: OperationAdd, Path: path, Value: want})
		case !reflect.DeepEqual(have, want):
			*ops = append(*ops, Operation{Op: OperationReplace, Path: path, Value: want})
		}
	}
}

func escape(token string) string {
	return strings.NewReplacer("~", "~0", "/", "~1").Replace(token)
}

func empty(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	case float64:
		return val == 0
	case bool:
		return !val
	case []any:
		return len(val) == 0
	case map[string]any:
		return len(val) == 0
	default:
		return false
	}
}
