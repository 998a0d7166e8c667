package domain

import "strings"

// Role represents a participant's asymmetric quest role.
type Role int

const (
	// RoleUnspecified represents an unassigned role (lobby participants).
	RoleUnspecified Role = iota
	// RoleBody perceives physical state: HP, armor, physical threats.
	RoleBody
	// RoleMind perceives probabilities, weaknesses and anomaly tags.
	RoleMind
	// RoleSocial perceives NPC intents, dialogue and morale.
	RoleSocial
)

// AsymmetricRoles is the declared role set, in assignment order.
var AsymmetricRoles = []Role{RoleBody, RoleMind, RoleSocial}

// RoleLabel returns the string label for a role.
func RoleLabel(role Role) string {
	switch role {
	case RoleBody:
		return "BODY"
	case RoleMind:
		return "MIND"
	case RoleSocial:
		return "SOCIAL"
	default:
		return "UNSPECIFIED"
	}
}

// RoleFromLabel converts a role label to a Role value.
func RoleFromLabel(label string) Role {
	switch strings.ToUpper(strings.TrimSpace(label)) {
	case "BODY":
		return RoleBody
	case "MIND":
		return RoleMind
	case "SOCIAL":
		return RoleSocial
	default:
		return RoleUnspecified
	}
}

// Initiative returns the fixed resolution priority for a role. Lower values
// act first during round resolution; the ordering is part of the replay
// contract and must not change between releases.
func (r Role) Initiative() int {
	switch r {
	case RoleBody:
		return 0
	case RoleMind:
		return 1
	case RoleSocial:
		return 2
	default:
		return 3
	}
}
