package user

type Role string

const (
	// RoleCustomer is an app user earning and spending points.
	RoleCustomer Role = "customer"
	// RoleStaff is restaurant staff allowed to consume claim codes at the POS.
	RoleStaff Role = "staff"
)

func (r Role) String() string {
	return string(r)
}

func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleStaff:
		return true
	default:
		return false
	}
}
