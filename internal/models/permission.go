package models

// Built-in roles seeded at startup.
const (
	RoleAdmin    = "admin"
	RoleReviewer = "reviewer"
	RoleMember   = "member"
)

// Well-known permission names used across services.
const (
	PermDocumentReview  = "document.review"
	PermDocumentListAll = "document.list_all"
	PermUserReadAny     = "user.read_any"
	PermRoleManage      = "role.manage"
)

type Role struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	Permissions []string `json:"permissions,omitempty"`
}

// PermissionCheck is the request/response shape of the check endpoint.
type PermissionCheck struct {
	UserID     string `json:"userId"`
	Permission string `json:"permission"`
	Allowed    bool   `json:"allowed"`
}
