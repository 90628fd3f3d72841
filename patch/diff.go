package patch

import (
	"fmt"

	"github.com/bytedance/sonic"
	jsonpatch "github.com/evanphx/json-patch/v5"
)

// MergeDiff returns the RFC 7386 merge patch that turns before into after.
func MergeDiff(before, after any) ([]byte, error) {
	a, err := sonic.Marshal(before)
	if err != nil {
		return nil, fmt.Errorf("marshal before: %w", err)
	}
	b, err := sonic.Marshal(after)
	if err != nil {
		return nil, fmt.Errorf("marshal after: %w", err)
	}
	diff, err := jsonpatch.CreateMergePatch(a, b)
	if err != nil {
		return nil, fmt.Errorf("create merge patch: %w", err)
	}
	return diff, nil
}
