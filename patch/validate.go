package patch

import (
	"fmt"
	"path"
)

// ValidateOperations rejects any operation whose path matches none of the
// allowed patterns. Patterns use path.Match syntax, so "*" spans a single
// pointer segment. No patterns means no restriction.
func ValidateOperations(ops []Operation, allowed []string) error {
	if len(allowed) == 0 {
		return nil
	}
	for i, op := range ops {
		if !pathAllowed(op.Path, allowed) {
			return fmt.Errorf("operation %d: path %q is not allowed", i, op.Path)
		}
	}
	return nil
}

func pathAllowed(p string, allowed []string) bool {
	for _, pattern := range allowed {
		if ok, err := path.Match(pattern, p); err == nil && ok {
			return true
		}
	}
	return false
}
