package service

import (
	"errors"

	"github.com/comanda-app/api/internal/enum"
)

// ErrForbidden is returned when the caller's role does not permit the
// requested operation.
var ErrForbidden = errors.New("insufficient role for this operation")

// Operation identifies a role-gated bill operation.
type Operation string

const (
	OpOpenInstantBill   Operation = "bill.open_instant"
	OpAddConfirmedItems Operation = "bill.add_confirmed_items"
	OpDeclineBill       Operation = "bill.decline"
)

// requiredRoles is the single policy table consulted before every gated
// operation. Operations absent from the table are open to any
// authenticated staff member.
var requiredRoles = map[Operation][]string{
	OpOpenInstantBill:   {enum.UserRoleAdmin, enum.UserRoleCook},
	OpAddConfirmedItems: {enum.UserRoleAdmin, enum.UserRoleCook},
	OpDeclineBill:       {enum.UserRoleAdmin, enum.UserRoleCook},
}

// authorize checks the caller's role against the policy table.
func authorize(role string, op Operation) error {
	roles, gated := requiredRoles[op]
	if !gated {
		return nil
	}
	for _, r := range roles {
		if role == r {
			return nil
		}
	}
	return ErrForbidden
}
