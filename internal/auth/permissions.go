package auth

import (
	"sort"
	"strings"
)

// Permission names a gated action. The catalog below is the only source of rules.
type Permission string

const (
	PermViewAdminMenu        Permission = "VIEW_ADMIN_MENU"
	PermEditConfig           Permission = "EDIT_CONFIG"
	PermViewAllTasks         Permission = "VIEW_ALL_TASKS"
	PermEditAllTasks         Permission = "EDIT_ALL_TASKS"
	PermViewPersonRegister   Permission = "VIEW_PERSON_REGISTER"
	PermExportData           Permission = "EXPORT_DATA"
	PermViewCaretakerUI      Permission = "VIEW_VAKTMESTER_UI"
	PermOpenMeetingsUI       Permission = "OPEN_MEETINGS_UI"
	PermGenerateReports      Permission = "GENERATE_REPORTS"
	PermViewBudgetMenu       Permission = "VIEW_BUDGET_MENU"
	PermSendNotice           Permission = "SEND_OPPSLAG"
	PermManageSuppliers      Permission = "MANAGE_SUPPLIERS"
	PermSendProtocolApproval Permission = "SEND_PROTOCOL_APPROVAL"
	PermViewApprovalStatus   Permission = "VIEW_APPROVAL_STATUS"
)

// permissionRules lists the roles allowed per permission. Admin is implicit everywhere.
var permissionRules = map[Permission]RoleSet{
	PermViewAdminMenu:        NewRoleSet(RoleAdmin),
	PermEditConfig:           NewRoleSet(RoleAdmin),
	PermViewAllTasks:         NewRoleSet(RoleBoardMember, RoleCaretaker, RolePowerUser),
	PermEditAllTasks:         NewRoleSet(RoleBoardMember, RolePowerUser),
	PermViewPersonRegister:   NewRoleSet(RoleBoardMember),
	PermExportData:           NewRoleSet(RoleBoardMember, RolePowerUser),
	PermViewCaretakerUI:      NewRoleSet(RoleCaretaker, RoleBoardMember),
	PermOpenMeetingsUI:       NewRoleSet(RoleBoardMember, RolePowerUser),
	PermGenerateReports:      NewRoleSet(RoleBoardMember, RolePowerUser),
	PermViewBudgetMenu:       NewRoleSet(RoleBoardMember),
	PermSendNotice:           NewRoleSet(RoleBoardMember, RolePowerUser),
	PermManageSuppliers:      NewRoleSet(RoleBoardMember, RoleCaretaker),
	PermSendProtocolApproval: NewRoleSet(RoleBoardMember),
	PermViewApprovalStatus:   NewRoleSet(RoleBoardMember, RolePowerUser),
}

// PermissionRule pairs a permission with the roles that satisfy it.
type PermissionRule struct {
	Name         Permission
	AllowedRoles RoleSet
}

// Rule looks up the rule for p.
func Rule(p Permission) (PermissionRule, bool) {
	roles, ok := permissionRules[p]
	if !ok {
		return PermissionRule{}, false
	}
	return PermissionRule{Name: p, AllowedRoles: roles}, true
}

// ParsePermission resolves an external permission name. Matching is case-insensitive.
func ParsePermission(name string) (Permission, bool) {
	p := Permission(strings.ToUpper(strings.TrimSpace(name)))
	_, ok := permissionRules[p]
	return p, ok
}

// Catalog returns every known permission sorted by name.
func Catalog() []Permission {
	out := make([]Permission, 0, len(permissionRules))
	for p := range permissionRules {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Allows reports whether roles satisfy the rule.
func (r PermissionRule) Allows(roles RoleSet) bool {
	if roles.Has(RoleAdmin) {
		return true
	}
	return roles.Intersects(r.AllowedRoles)
}
