package policy

import (
	"github.com/jrsteele09/granjas-console/farm"
	"github.com/jrsteele09/granjas-console/users"
)

var (
	adminOnly     = []users.RoleID{users.RoleAdmin}
	fieldLeads    = []users.RoleID{users.RoleAdmin, users.RoleSupervisor}
	fieldCrew     = []users.RoleID{users.RoleAdmin, users.RoleWorker, users.RoleSupervisor}
	academicStaff = []users.RoleID{users.RoleAdmin, users.RoleInstructor, users.RoleAssistantInstructor}
	instructors   = []users.RoleID{users.RoleInstructor, users.RoleAssistantInstructor}
	planners      = []users.RoleID{users.RoleAdmin, users.RoleInstructor, users.RoleAssistantInstructor, users.RoleSupervisor}
)

// DefaultRules is the console's permission table. Privileged roles keep edit, delete
// and approve rights in every state; owners lose them once a record leaves its open states.
func DefaultRules() []Rule {
	laborOpen := farm.States(farm.StatePending, farm.StateInProgress)
	pending := farm.States(farm.StatePending)
	recommendationOpen := farm.States(farm.StatePending, farm.StateApproved, farm.StateInExecution)

	return []Rule{
		{
			Kind: farm.KindLabor,
			Grants: map[Action]Grant{
				ActionCreate:   {Roles: planners},
				ActionEdit:     {Roles: fieldLeads, Owner: true, OwnerStates: laborOpen},
				ActionDelete:   {Roles: fieldLeads, Owner: true, OwnerStates: pending},
				ActionComplete: {Roles: fieldCrew, States: laborOpen, Owner: true, OwnerStates: laborOpen},
				ActionAssign:   {Roles: fieldCrew, States: laborOpen},
			},
		},
		{
			Kind: farm.KindRecommendation,
			Grants: map[Action]Grant{
				ActionCreate:  {Roles: academicStaff},
				ActionEdit:    {Roles: adminOnly, Owner: true, OwnerStates: recommendationOpen},
				ActionDelete:  {Roles: adminOnly, Owner: true, OwnerStates: pending},
				ActionApprove: {Roles: adminOnly, Owner: true, OwnerStates: pending},
				ActionReject:  {Roles: adminOnly, Owner: true, OwnerStates: pending},
			},
			OwnOnly: instructors,
		},
		{
			Kind: farm.KindFarm,
			Grants: map[Action]Grant{
				ActionCreate: {Roles: adminOnly},
				ActionEdit:   {Roles: adminOnly, Owner: true},
				ActionDelete: {Roles: adminOnly},
				ActionAssign: {Roles: adminOnly},
			},
		},
		{
			Kind: farm.KindLot,
			Grants: map[Action]Grant{
				ActionCreate: {Roles: academicStaff},
				ActionEdit:   {Roles: academicStaff},
				ActionDelete: {Roles: adminOnly},
			},
		},
		{
			Kind: farm.KindCrop,
			Grants: map[Action]Grant{
				ActionCreate: {Roles: academicStaff},
				ActionEdit:   {Roles: academicStaff},
				ActionDelete: {Roles: adminOnly},
			},
		},
		{
			Kind: farm.KindInventory,
			Grants: map[Action]Grant{
				ActionCreate: {Roles: fieldLeads},
				ActionEdit:   {Roles: fieldLeads},
				ActionDelete: {Roles: fieldLeads},
			},
		},
		{
			Kind: farm.KindProgram,
			Grants: map[Action]Grant{
				ActionCreate: {Roles: adminOnly},
				ActionEdit:   {Roles: adminOnly},
				ActionDelete: {Roles: adminOnly},
			},
		},
	}
}

var defaultPolicy = New(DefaultRules()...)

// Default returns the shared policy built from DefaultRules.
func Default() *Policy {
	return defaultPolicy
}
