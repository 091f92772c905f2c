package auth

// UserIdentity adapts a User into the Identity interface.
type UserIdentity struct {
	user *User
}

// NewIdentityFromUser returns an Identity adapter for the provided user.
func NewIdentityFromUser(user *User) Identity {
	if user == nil {
		return nil
	}
	return UserIdentity{user: user}
}

// User returns the wrapped record.
func (u UserIdentity) User() *User {
	return u.user
}

// ID returns the user's ID as a string.
func (u UserIdentity) ID() string {
	if u.user == nil {
		return ""
	}
	return u.user.ID.String()
}

func (u UserIdentity) Provider() string {
	if u.user == nil {
		return ""
	}
	return u.user.Provider
}

func (u UserIdentity) UID() string {
	if u.user == nil {
		return ""
	}
	return u.user.UID
}

// Email returns the user's email address.
func (u UserIdentity) Email() string {
	if u.user == nil {
		return ""
	}
	return u.user.Email
}

// Scopes returns a copy of the last attached scopes.
func (u UserIdentity) Scopes() []string {
	if u.user == nil {
		return nil
	}
	return append([]string(nil), u.user.Scopes...)
}
