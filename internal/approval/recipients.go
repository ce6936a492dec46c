package approval

import (
	"context"
	"strings"

	"sameieportalen.no/internal/auth"
)

// RosterRecipients selects board members from the roster, de-duplicated by email.
type RosterRecipients struct {
	source auth.RosterSource
}

var _ Recipients = (*RosterRecipients)(nil)

func NewRosterRecipients(source auth.RosterSource) *RosterRecipients {
	return &RosterRecipients{source: source}
}

func (r *RosterRecipients) ApprovalRecipients(ctx context.Context) ([]Recipient, error) {
	rows, err := r.source.FetchRoster(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(rows))
	var out []Recipient
	for _, row := range rows {
		if !row.Roles().Has(auth.RoleBoardMember) {
			continue
		}
		email := auth.NormalizeIdentity(row.Email)
		if !validEmail(email) {
			continue
		}
		if _, dup := seen[email]; dup {
			continue
		}
		seen[email] = struct{}{}
		out = append(out, Recipient{Name: strings.TrimSpace(row.Name), Email: email})
	}
	return out, nil
}

func validEmail(email string) bool {
	return email != "" && validate.Var(email, "email") == nil
}
