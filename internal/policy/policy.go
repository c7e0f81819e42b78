// Package policy maps CRUD actions on named resources to required
// capabilities through an explicit table, and delegates the actual check to
// an Evaluator.
package policy

import (
	"net/http"

	"github.com/identra/server/internal/model"
)

// Action is a CRUD verb.
type Action int

const (
	ActionCreate Action = iota
	ActionRead
	ActionUpdate
	ActionDelete
)

// capabilityByAction is the enum-keyed table of capability prefixes.
var capabilityByAction = map[Action]string{
	ActionCreate: "add",
	ActionRead:   "view",
	ActionUpdate: "change",
	ActionDelete: "delete",
}

// ActionForMethod maps an HTTP method to its CRUD action. Unknown methods
// map to Read, the least-privileged action.
func ActionForMethod(method string) Action {
	switch method {
	case http.MethodPost:
		return ActionCreate
	case http.MethodPut, http.MethodPatch:
		return ActionUpdate
	case http.MethodDelete:
		return ActionDelete
	default:
		return ActionRead
	}
}

// Capability names the capability required to perform action on resource,
// e.g. Capability(ActionUpdate, "user") == "change_user".
func Capability(action Action, resource string) string {
	return capabilityByAction[action] + "_" + resource
}

// Evaluator decides whether a user holds a capability. Real rule evaluation
// is an external collaborator; the core only consumes this interface.
type Evaluator interface {
	HasCapability(user *model.User, capability string) bool
}

// SelfServeEvaluator is the default evaluator: any active user may act on
// their own profile resources.
type SelfServeEvaluator struct{}

func (SelfServeEvaluator) HasCapability(user *model.User, capability string) bool {
	if user == nil || !user.IsActive {
		return false
	}
	return true
}
