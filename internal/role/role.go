// Package role resolves the user's application role by reconciling the
// backend record, the durable local cache, and the ephemeral per-navigation
// flags.
package role

// Role is one of the two mutually exclusive account capabilities, or Unset
// while the account has not chosen one.
type Role string

const (
	Owner    Role = "owner"
	Reviewer Role = "reviewer"
	Unset    Role = "unset"
)

// Normalize maps arbitrary input to a valid Role, defaulting to Unset.
func Normalize(value string) Role {
	switch Role(value) {
	case Owner, Reviewer:
		return Role(value)
	default:
		return Unset
	}
}
