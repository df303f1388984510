package user

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User is owned by the identity service; this module only reads it.
type User struct {
	Uuid     string
	Username string
	Role     Role
}

func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
