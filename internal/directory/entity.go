package directory

import "time"

type Role string

const (
	RoleStaff   Role = "staff"
	RoleManager Role = "manager"
	RoleOwner   Role = "owner"
)

// User is a staff directory entry. The engine only cares about two facts:
// which dealership the user belongs to and whether their role is elevated.
type User struct {
	ID           string    `yaml:"id"`
	Name         string    `yaml:"name"`
	DealershipID string    `yaml:"dealership_id,omitempty"`
	Role         Role      `yaml:"role"`
	APIKey       string    `yaml:"api_key,omitempty"`
	CreatedAt    time.Time `yaml:"created_at"`
}

// Elevated reports whether the user holds the manager capability. Managers
// and owners are treated as one capability throughout the engine.
func (u *User) Elevated() bool {
	return u.Role == RoleManager || u.Role == RoleOwner
}
