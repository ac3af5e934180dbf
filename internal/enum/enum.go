package enum

// --- State machines (CHECK constrained in DB) ---

const (
	BillStatusPending  = "pending"
	BillStatusActive   = "active"
	BillStatusClosed   = "closed"
	BillStatusDeclined = "declined"
)

const (
	OrderItemStatusPending  = "pending"
	OrderItemStatusActive   = "active"
	OrderItemStatusClosed   = "closed"
	OrderItemStatusDeclined = "declined"
	OrderItemStatusRemoved  = "removed"
)

// --- Roles (CHECK constrained in DB) ---

const (
	UserRoleAdmin  = "admin"
	UserRoleCook   = "cook"
	UserRoleWaiter = "waiter"
)

// IsBillStatus reports whether s is a known bill status.
func IsBillStatus(s string) bool {
	switch s {
	case BillStatusPending, BillStatusActive, BillStatusClosed, BillStatusDeclined:
		return true
	}
	return false
}

// IsUserRole reports whether s is a known staff role.
func IsUserRole(s string) bool {
	switch s {
	case UserRoleAdmin, UserRoleCook, UserRoleWaiter:
		return true
	}
	return false
}
