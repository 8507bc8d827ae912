package validate

import "strings"

// reserved usernames collide with routes or system terms
var reservedUsernames = []string{
	"admin",
	"administrator",
	"api",
	"auth",
	"login",
	"logout",
	"signin",
	"signout",
	"signup",
	"register",
	"new",
	"timeline",
	"settings",
	"profile",
	"user",
	"users",
	"account",
	"help",
	"support",
	"contact",
	"about",
	"terms",
	"privacy",
	"public",
	"private",
	"system",
	"root",
	"null",
	"undefined",
	"test",
	"demo",
	"example",
	"www",
	"mail",
	"email",
	"ftp",
	"localhost",
}

// ReservedUsernames returns a copy of the reserved username list.
func ReservedUsernames() []string {
	out := make([]string, len(reservedUsernames))
	copy(out, reservedUsernames)
	return out
}

// IsReservedUsername reports whether name is reserved, ignoring case.
func IsReservedUsername(name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, r := range reservedUsernames {
		if r == name {
			return true
		}
	}
	return false
}
