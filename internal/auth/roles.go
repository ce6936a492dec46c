package auth

import (
	"encoding/json"
	"strings"
)

// Role is a capability bucket from the fixed role catalog.
type Role uint8

const (
	RoleGuest Role = iota + 1
	RoleResident
	RoleUnitOwner
	RoleTenant
	RoleBoardMember
	RoleCaretaker
	RolePowerUser
	RoleAdmin

	roleSentinel
)

var roleNames = [...]string{
	RoleGuest:       "Gjest",
	RoleResident:    "Beboer",
	RoleUnitOwner:   "Seksjonseier",
	RoleTenant:      "Leietaker",
	RoleBoardMember: "Styremedlem",
	RoleCaretaker:   "Vaktmester",
	RolePowerUser:   "Kjernebruker",
	RoleAdmin:       "Admin",
}

// roleAliases maps normalized spellings to canonical roles.
var roleAliases = map[string]Role{
	"gjest": RoleGuest, "guest": RoleGuest,

	"beboer": RoleResident, "resident": RoleResident, "bruker": RoleResident,

	"seksjonseier": RoleUnitOwner, "eier": RoleUnitOwner, "owner": RoleUnitOwner,
	"unitowner": RoleUnitOwner, "sameier": RoleUnitOwner,

	"leietaker": RoleTenant, "leier": RoleTenant, "tenant": RoleTenant,

	"styremedlem": RoleBoardMember, "styre": RoleBoardMember, "styret": RoleBoardMember,
	"styreleder": RoleBoardMember, "nestleder": RoleBoardMember, "varamedlem": RoleBoardMember,
	"board": RoleBoardMember, "boardmember": RoleBoardMember,

	"vaktmester": RoleCaretaker, "caretaker": RoleCaretaker, "janitor": RoleCaretaker,

	"kjernebruker": RolePowerUser, "superbruker": RolePowerUser, "poweruser": RolePowerUser,

	"admin": RoleAdmin, "administrator": RoleAdmin, "systemadmin": RoleAdmin,
}

// AllRoles lists the catalog in declaration order.
func AllRoles() []Role {
	out := make([]Role, 0, int(roleSentinel)-1)
	for r := RoleGuest; r < roleSentinel; r++ {
		out = append(out, r)
	}
	return out
}

func (r Role) Valid() bool { return r >= RoleGuest && r < roleSentinel }

// String returns the canonical catalog name.
func (r Role) String() string {
	if !r.Valid() {
		return "Ukjent"
	}
	return roleNames[r]
}

// ParseRole normalizes a raw role string through the alias table.
func ParseRole(raw string) (Role, bool) {
	r, ok := roleAliases[normalizeRoleKey(raw)]
	return r, ok
}

func normalizeRoleKey(raw string) string {
	raw = strings.ToLower(strings.TrimSpace(raw))
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '-', '_', '.':
			return -1
		}
		return r
	}, raw)
}

// SplitRoleCell splits a roster role cell on commas, semicolons, pipes and newlines.
func SplitRoleCell(cell string) []string {
	parts := strings.FieldsFunc(cell, func(r rune) bool {
		switch r {
		case ',', ';', '|', '\n', '\r':
			return true
		}
		return false
	})
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ParseRoleCell returns the recognized roles in a roster cell. Unknown values are dropped.
func ParseRoleCell(cell string) RoleSet {
	var set RoleSet
	for _, token := range SplitRoleCell(cell) {
		if r, ok := ParseRole(token); ok {
			set = set.With(r)
		}
	}
	return set
}

// RoleSet is an immutable set of roles. Values are copies, so callers may keep them.
type RoleSet uint16

// NewRoleSet builds a set from the given roles.
func NewRoleSet(roles ...Role) RoleSet {
	var s RoleSet
	for _, r := range roles {
		s = s.With(r)
	}
	return s
}

// With returns the set with r added.
func (s RoleSet) With(r Role) RoleSet {
	if !r.Valid() {
		return s
	}
	return s | 1<<r
}

// Union returns the roles present in either set.
func (s RoleSet) Union(o RoleSet) RoleSet { return s | o }

func (s RoleSet) Has(r Role) bool { return r.Valid() && s&(1<<r) != 0 }

func (s RoleSet) Intersects(o RoleSet) bool { return s&o != 0 }

func (s RoleSet) Empty() bool { return s == 0 }

func (s RoleSet) Len() int {
	n := 0
	for r := RoleGuest; r < roleSentinel; r++ {
		if s.Has(r) {
			n++
		}
	}
	return n
}

// Roles lists members in catalog order.
func (s RoleSet) Roles() []Role {
	out := make([]Role, 0, s.Len())
	for r := RoleGuest; r < roleSentinel; r++ {
		if s.Has(r) {
			out = append(out, r)
		}
	}
	return out
}

// Strings lists canonical names in catalog order.
func (s RoleSet) Strings() []string {
	roles := s.Roles()
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = r.String()
	}
	return out
}

func (s RoleSet) String() string {
	return "{" + strings.Join(s.Strings(), ", ") + "}"
}

func (s RoleSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Strings())
}

func (s *RoleSet) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	var set RoleSet
	for _, n := range names {
		if r, ok := ParseRole(n); ok {
			set = set.With(r)
		}
	}
	*s = set
	return nil
}
