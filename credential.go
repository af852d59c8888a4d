package c3p0

import "strings"

// Credential identifies the database user a sub-pool connects as. The zero value is the null credential, meaning the
// provider's default user.
type Credential struct {
	User     string
	Password string
}

// IsNull reports whether c is the null credential.
func (c Credential) IsNull() bool {
	return c.User == "" && c.Password == ""
}

// String returns a form of c safe for logs. The user is partially masked and the password never appears.
func (c Credential) String() string {
	if c.IsNull() {
		return "<default>"
	}
	return maskUser(c.User)
}

func maskUser(user string) string {
	switch {
	case user == "":
		return "<none>"
	case len(user) <= 2:
		return strings.Repeat("*", len(user))
	default:
		return user[:2] + strings.Repeat("*", len(user)-2)
	}
}
