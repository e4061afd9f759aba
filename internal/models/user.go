package models

// UserRole represents the roles issued by the auth server.
type UserRole string

const (
	RoleUser     UserRole = "USER"
	RoleOperator UserRole = "OPERATOR"
	RoleAuditor  UserRole = "AUDITOR"
	RoleAdmin    UserRole = "ADMIN"
)

// Valid reports whether the role is known.
func (r UserRole) Valid() bool {
	switch r {
	case RoleUser, RoleOperator, RoleAuditor, RoleAdmin:
		return true
	}
	return false
}

// CanReviewRequests reports whether the role may read any reward request.
func (r UserRole) CanReviewRequests() bool {
	return r == RoleOperator || r == RoleAuditor || r == RoleAdmin
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
