package auth

// EventKind enumerates auth state changes published by the identity provider.
type EventKind int

const (
	SignIn EventKind = iota + 1
	SignOut
)

func (k EventKind) String() string {
	switch k {
	case SignIn:
		return "sign_in"
	case SignOut:
		return "sign_out"
	}
	return "unknown"
}

// Event is an auth state change for one installation. Credential is set for
// SignIn.
type Event struct {
	Kind       EventKind
	UserID     string
	Credential string
}
