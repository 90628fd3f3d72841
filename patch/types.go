// Package patch seeds known customer data into a conversation with RFC 6902
// operations and diffs committed states with JSON merge patches.
package patch

const (
	OperationAdd     = "add"
	OperationReplace = "replace"
	OperationRemove  = "remove"
)

type Operation struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	Value any    `json:"value,omitempty"`
}

// DefaultSeedPaths are the pointer patterns a seed may touch.
var DefaultSeedPaths = []string{
	"/customer_profile/*",
	"/customer_profile/facts/*",
	"/customer_profile/certainty/*",
	"/active_proposal",
	"/active_proposal/*",
}
