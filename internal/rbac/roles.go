package rbac

// Role names. Keep these stable; they are part of the token contract.
const (
	// RoleAdmin can do everything, including issuing tokens.
	RoleAdmin = "admin"
	// RoleSupervisor runs campaigns: create, launch, pause, stop, enqueue.
	RoleSupervisor = "supervisor"
	// RoleViewer reads campaign stats and call history.
	RoleViewer = "viewer"
)

func IsAdmin(role string) bool { return role == RoleAdmin }
