package domain

type UserRole string

const (
	UserRoleMember    UserRole = "Member"
	UserRoleLibrarian UserRole = "Librarian"
)

func (r UserRole) Valid() bool {
	return r == UserRoleMember || r == UserRoleLibrarian
}

type User struct {
	ID        int32    `json:"id"`
	Email     string   `json:"email"`
	FirstName string   `json:"first_name"`
	LastName  string   `json:"last_name"`
	Role      UserRole `json:"role"`
}

func (u *User) Name() string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}
