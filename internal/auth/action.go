package auth

import "fmt"

// Action is the single operation a Blossom authorization event permits.
type Action string

const (
	ActionUpload Action = "upload"
	ActionHas    Action = "has"
	ActionGet    Action = "get"
	ActionList   Action = "list"
	ActionDelete Action = "delete"
)

// ParseAction maps the value of an event's "t" tag to an Action.
func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case ActionUpload, ActionHas, ActionGet, ActionList, ActionDelete:
		return Action(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrActionInvalid, s)
}
