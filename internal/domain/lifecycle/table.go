// Package lifecycle is the authoritative order state machine. It performs no I/O:
// callers load an order, ask for the next state, and persist it with a conditional update.
package lifecycle

import (
	domainErrors "github.com/polkiloo/dispatchdesk/internal/domain/errors"
	"github.com/polkiloo/dispatchdesk/internal/domain/model"
)

// Action names a state-changing operation on an order.
type Action string

const (
	ActionCreate   Action = "create"
	ActionClaim    Action = "claim"
	ActionAssign   Action = "assign"
	ActionStart    Action = "start"
	ActionComplete Action = "complete"
	ActionRefuse   Action = "refuse"
	ActionConfirm  Action = "confirm"
	ActionCancel   Action = "cancel_by_client"
	ActionReopen   Action = "reopen"
	ActionTransfer Action = "transfer"
	ActionUnassign Action = "unassign"
	ActionExpire   Action = "expire"
	ActionDispute  Action = "dispute"
)

// Ownership is the relation the actor must have with the order.
type Ownership int

const (
	OwnerNone Ownership = iota
	// OwnerClaimHolder requires the acting worker to hold the claim.
	OwnerClaimHolder
	// OwnerDispatcher requires the creator or the assigned dispatcher. Admins bypass it.
	OwnerDispatcher
	// OwnerAssignedDispatcher requires the current handler. Admins bypass it.
	OwnerAssignedDispatcher
)

// Rule is one row of the transition table. An empty To means the status does not change.
type Rule struct {
	Action Action
	From   []model.OrderStatus
	To     model.OrderStatus
	Roles  []model.Role
	Owner  Ownership
}

var rules = map[Action]Rule{
	ActionClaim: {
		Action: ActionClaim,
		From:   []model.OrderStatus{model.OrderStatusPlaced, model.OrderStatusReopened},
		To:     model.OrderStatusClaimed,
		Roles:  []model.Role{model.RoleMaster},
	},
	ActionAssign: {
		Action: ActionAssign,
		From:   []model.OrderStatus{model.OrderStatusPlaced, model.OrderStatusReopened},
		To:     model.OrderStatusClaimed,
		Roles:  []model.Role{model.RoleDispatcher, model.RoleAdmin},
		Owner:  OwnerDispatcher,
	},
	ActionStart: {
		Action: ActionStart,
		From:   []model.OrderStatus{model.OrderStatusClaimed},
		To:     model.OrderStatusStarted,
		Roles:  []model.Role{model.RoleMaster},
		Owner:  OwnerClaimHolder,
	},
	ActionComplete: {
		Action: ActionComplete,
		From:   []model.OrderStatus{model.OrderStatusStarted},
		To:     model.OrderStatusCompleted,
		Roles:  []model.Role{model.RoleMaster},
		Owner:  OwnerClaimHolder,
	},
	ActionRefuse: {
		Action: ActionRefuse,
		From:   []model.OrderStatus{model.OrderStatusStarted},
		To:     model.OrderStatusCanceledByMaster,
		Roles:  []model.Role{model.RoleMaster},
		Owner:  OwnerClaimHolder,
	},
	ActionConfirm: {
		Action: ActionConfirm,
		From:   []model.OrderStatus{model.OrderStatusCompleted},
		To:     model.OrderStatusConfirmed,
		Roles:  []model.Role{model.RoleDispatcher, model.RoleAdmin},
		Owner:  OwnerAssignedDispatcher,
	},
	ActionCancel: {
		Action: ActionCancel,
		From: []model.OrderStatus{
			model.OrderStatusPlaced,
			model.OrderStatusClaimed,
			model.OrderStatusStarted,
			model.OrderStatusReopened,
		},
		To:    model.OrderStatusCanceledByClient,
		Roles: []model.Role{model.RoleDispatcher, model.RoleAdmin},
		Owner: OwnerDispatcher,
	},
	ActionReopen: {
		Action: ActionReopen,
		From: []model.OrderStatus{
			model.OrderStatusCanceledByMaster,
			model.OrderStatusCanceledByClient,
			model.OrderStatusExpired,
		},
		To:    model.OrderStatusReopened,
		Roles: []model.Role{model.RoleDispatcher, model.RoleAdmin},
		Owner: OwnerDispatcher,
	},
	ActionTransfer: {
		Action: ActionTransfer,
		From: []model.OrderStatus{
			model.OrderStatusPlaced,
			model.OrderStatusReopened,
			model.OrderStatusClaimed,
			model.OrderStatusStarted,
		},
		Roles: []model.Role{model.RoleDispatcher, model.RoleAdmin},
		Owner: OwnerAssignedDispatcher,
	},
	ActionUnassign: {
		Action: ActionUnassign,
		From:   []model.OrderStatus{model.OrderStatusClaimed, model.OrderStatusStarted},
		To:     model.OrderStatusReopened,
		Roles:  []model.Role{model.RoleDispatcher, model.RoleAdmin},
		Owner:  OwnerDispatcher,
	},
	ActionExpire: {
		Action: ActionExpire,
		From:   []model.OrderStatus{model.OrderStatusPlaced},
		To:     model.OrderStatusExpired,
		Roles:  []model.Role{model.RoleSystem},
	},
	ActionDispute: {
		Action: ActionDispute,
		From: []model.OrderStatus{
			model.OrderStatusClaimed,
			model.OrderStatusStarted,
			model.OrderStatusCompleted,
			model.OrderStatusConfirmed,
		},
		Roles: []model.Role{model.RoleDispatcher, model.RoleAdmin},
		Owner: OwnerDispatcher,
	},
}

// Actions lists every action governed by the transition table.
func Actions() []Action {
	return []Action{
		ActionClaim, ActionAssign, ActionStart, ActionComplete, ActionRefuse, ActionConfirm,
		ActionCancel, ActionReopen, ActionTransfer, ActionUnassign, ActionExpire, ActionDispute,
	}
}

// RuleFor returns the table row of an action.
func RuleFor(a Action) (Rule, bool) {
	r, ok := rules[a]
	return r, ok
}

// Allows reports whether the table permits the action from the status for the role,
// ignoring ownership and input preconditions.
func Allows(a Action, from model.OrderStatus, role model.Role) bool {
	r, ok := rules[a]
	if !ok {
		return false
	}
	return r.allowsRole(role) && r.allowsFrom(from)
}

// Authorize checks role, status and ownership in that order and reports the first unmet
// precondition as a structured failure.
func Authorize(a Action, o *model.Order, actor model.Actor) error {
	r, ok := rules[a]
	if !ok {
		return domainErrors.Guard(domainErrors.ReasonInvalidStatus)
	}
	if !r.allowsRole(actor.Role) {
		return domainErrors.Guard(domainErrors.ReasonRoleNotAllowed)
	}
	if !r.allowsFrom(o.Status) {
		if a == ActionClaim || a == ActionAssign {
			return domainErrors.NotAvailable()
		}
		return domainErrors.Guard(domainErrors.ReasonInvalidStatus)
	}
	switch r.Owner {
	case OwnerClaimHolder:
		if !o.HeldBy(actor.ID) {
			return domainErrors.Guard(domainErrors.ReasonNotClaimHolder)
		}
	case OwnerDispatcher:
		if actor.Role != model.RoleAdmin && !o.OwnedBy(actor.ID) {
			return domainErrors.Guard(domainErrors.ReasonNotOrderOwner)
		}
	case OwnerAssignedDispatcher:
		if actor.Role != model.RoleAdmin && o.AssignedDispatcherID != actor.ID {
			return domainErrors.Guard(domainErrors.ReasonNotOrderOwner)
		}
	}
	return nil
}

func (r Rule) allowsRole(role model.Role) bool {
	for _, allowed := range r.Roles {
		if allowed == role {
			return true
		}
	}
	return false
}

func (r Rule) allowsFrom(s model.OrderStatus) bool {
	for _, from := range r.From {
		if from == s {
			return true
		}
	}
	return false
}
