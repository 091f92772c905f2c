package auth0

import "strings"

const botProvider = "auth0"

// Principal is the caller a verified token speaks for: a Bot (machine to
// machine client) or a Human (end user).
type Principal interface {
	// ID is the Auth0 user id, "{provider}|{local id}".
	ID() string
	Provider() string
	LocalID() string
	IsBot() bool
}

// Bot is a client-credentials caller.
type Bot struct {
	ClientID string
}

func (b Bot) ID() string       { return botProvider + "|" + b.ClientID }
func (b Bot) Provider() string { return botProvider }
func (b Bot) LocalID() string  { return b.ClientID }
func (b Bot) IsBot() bool      { return true }

// Human is an end user identified by the token subject.
type Human struct {
	Subject string
}

func (h Human) ID() string { return h.Subject }

func (h Human) Provider() string {
	provider, _ := splitPrincipalID(h.Subject)
	return provider
}

func (h Human) LocalID() string {
	_, local := splitPrincipalID(h.Subject)
	return local
}

func (h Human) IsBot() bool { return false }

// splitPrincipalID splits on the first "|". An id without a separator has no
// provider and is its own local id.
func splitPrincipalID(id string) (provider, local string) {
	provider, local, found := strings.Cut(id, "|")
	if !found {
		return "", id
	}
	return provider, local
}
