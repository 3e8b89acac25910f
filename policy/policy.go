// Package policy decides which actions a role may take on a farm resource.
// Decisions are pure: they depend only on the role, the acting user id and the resource.
package policy

import (
	"github.com/jrsteele09/granjas-console/farm"
	"github.com/jrsteele09/granjas-console/users"
)

type Action string

const (
	ActionCreate   Action = "create"
	ActionEdit     Action = "edit"
	ActionDelete   Action = "delete"
	ActionApprove  Action = "approve"
	ActionReject   Action = "reject"
	ActionComplete Action = "complete"
	ActionAssign   Action = "assign_resources"
)

// Grant describes who may perform one action on one kind of resource.
//
// Privileged roles are allowed regardless of ownership, restricted to States when set.
// When Owner is true, the user the resource belongs to is allowed while the resource is
// in one of OwnerStates. A nil state set means "any state".
type Grant struct {
	Roles       []users.RoleID
	States      farm.StateSet
	Owner       bool
	OwnerStates farm.StateSet
}

// Rule is the per-kind configuration of the policy table.
type Rule struct {
	Kind   farm.Kind
	Grants map[Action]Grant
	// OwnOnly lists roles that only see the records they own.
	OwnOnly []users.RoleID
}

type Policy struct {
	rules map[farm.Kind]Rule
}

// New builds a policy from rules. Kinds without a rule deny every action.
func New(rules ...Rule) *Policy {
	p := &Policy{rules: make(map[farm.Kind]Rule, len(rules))}
	for _, r := range rules {
		p.rules[r.Kind] = r
	}
	return p
}

// Rule returns the configuration for kind.
func (p *Policy) Rule(kind farm.Kind) (Rule, bool) {
	r, ok := p.rules[kind]
	return r, ok
}

// Can reports whether a user with role and userID may perform action on res.
func (p *Policy) Can(action Action, role users.RoleID, res farm.Resource, userID int) bool {
	if res == nil {
		return false
	}
	rule, ok := p.rules[res.Kind()]
	if !ok {
		return false
	}
	g, ok := rule.Grants[action]
	if !ok {
		return false
	}
	state := res.Status()
	if hasRole(g.Roles, role) && anyOrHas(g.States, state) {
		return true
	}
	return g.Owner && owns(res, userID) && anyOrHas(g.OwnerStates, state)
}

// CanCreate reports whether role may create records of kind. Only the role set of the
// create grant applies since a new record has no owner or state yet.
func (p *Policy) CanCreate(role users.RoleID, kind farm.Kind) bool {
	rule, ok := p.rules[kind]
	if !ok {
		return false
	}
	return hasRole(rule.Grants[ActionCreate].Roles, role)
}

func (p *Policy) CanEdit(role users.RoleID, res farm.Resource, userID int) bool {
	return p.Can(ActionEdit, role, res, userID)
}

func (p *Policy) CanDelete(role users.RoleID, res farm.Resource, userID int) bool {
	return p.Can(ActionDelete, role, res, userID)
}

func (p *Policy) CanApprove(role users.RoleID, res farm.Resource, userID int) bool {
	return p.Can(ActionApprove, role, res, userID)
}

func (p *Policy) CanReject(role users.RoleID, res farm.Resource, userID int) bool {
	return p.Can(ActionReject, role, res, userID)
}

func (p *Policy) CanComplete(role users.RoleID, res farm.Resource, userID int) bool {
	return p.Can(ActionComplete, role, res, userID)
}

// CanAssignResources does not consider ownership.
func (p *Policy) CanAssignResources(role users.RoleID, res farm.Resource) bool {
	return p.Can(ActionAssign, role, res, 0)
}

// CanView reports whether res is visible in listings for the user.
func (p *Policy) CanView(role users.RoleID, res farm.Resource, userID int) bool {
	if res == nil {
		return false
	}
	rule, ok := p.rules[res.Kind()]
	if !ok || !hasRole(rule.OwnOnly, role) {
		return true
	}
	return owns(res, userID)
}

// Actions is the per-row decision handed to the view layer.
type Actions struct {
	Edit            bool `json:"edit"`
	Delete          bool `json:"delete"`
	Approve         bool `json:"approve"`
	Reject          bool `json:"reject"`
	Complete        bool `json:"complete"`
	AssignResources bool `json:"assign_resources"`
}

// Any reports whether at least one action is permitted.
func (a Actions) Any() bool {
	return a.Edit || a.Delete || a.Approve || a.Reject || a.Complete || a.AssignResources
}

func (p *Policy) Decide(role users.RoleID, res farm.Resource, userID int) Actions {
	return Actions{
		Edit:            p.CanEdit(role, res, userID),
		Delete:          p.CanDelete(role, res, userID),
		Approve:         p.CanApprove(role, res, userID),
		Reject:          p.CanReject(role, res, userID),
		Complete:        p.CanComplete(role, res, userID),
		AssignResources: p.CanAssignResources(role, res),
	}
}

// Filter returns the items visible to the user, preserving order.
func Filter[T farm.Resource](p *Policy, role users.RoleID, userID int, items []T) []T {
	out := make([]T, 0, len(items))
	for _, it := range items {
		if p.CanView(role, it, userID) {
			out = append(out, it)
		}
	}
	return out
}

func owns(res farm.Resource, userID int) bool {
	return userID > 0 && res.Owner() == userID
}

func hasRole(roles []users.RoleID, role users.RoleID) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

func anyOrHas(set farm.StateSet, s farm.State) bool {
	return set == nil || set.Has(s)
}
