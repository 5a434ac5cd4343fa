// Package model defines the data structures used throughout the application.
package model

// Role is the permission level of a user account.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// User represents a registered account.
//
// The users document is a single JSON object keyed by username, so Username
// is not serialised with the record itself; UserService fills it in from
// the map key when the document is loaded.
//
// Password holds a bcrypt hash. Documents written by older clients may still
// carry plaintext values; those are upgraded on the next successful login.
type User struct {
	Username  string `json:"-"`
	Password  string `json:"password"`
	Image     string `json:"image"` // URL, data URL, or empty
	Role      Role   `json:"role"`
	CreatedAt string `json:"createdAt"`
}

// IsAdmin reports whether the user holds the admin role.
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Users is the users document: username → record.
type Users map[string]*User

// Clone returns a deep copy, so callers can't modify the owner's snapshot.
func (u Users) Clone() Users {
	out := make(Users, len(u))
	for name, rec := range u {
		if rec == nil {
			continue
		}
		cp := *rec
		out[name] = &cp
	}
	return out
}
