package auth

type Role string

const (
	RoleViewer    Role = "viewer"
	RoleCollector Role = "collector"
	RoleManager   Role = "manager"
	RoleAdmin     Role = "admin"
	// RoleService is carried by machine callers such as the sweeper.
	RoleService Role = "service"
)

func (r Role) Valid() bool {
	switch r {
	case RoleViewer, RoleCollector, RoleManager, RoleAdmin, RoleService:
		return true
	default:
		return false
	}
}

// CanExecute reports whether the role may start workflow runs.
func (r Role) CanExecute() bool {
	return r.Valid() && r != RoleViewer
}

// Claims identify the caller of an authenticated request.
type Claims struct {
	UserID         string
	OrganizationID string
	Role           Role
}
