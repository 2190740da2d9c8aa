// Package authz answers whether a sender may issue bot commands.
package authz

// Authorizer reports whether the account with the given login is
// allowed to send commands to the bot. Implementations must return
// false for the bot's own account: rejecting the bot's own comment
// edits is what keeps it from reacting to updates it wrote itself.
type Authorizer interface {
	IsAuthorized(login string) bool
}

// StaticAuthorizer authorizes logins from a fixed allow-list and
// always rejects the bot account, even if it was listed by mistake.
type StaticAuthorizer struct {
	allowed  map[string]struct{}
	botLogin string
}

// NewStaticAuthorizer builds an authorizer from the configured command
// users and the bot's own login.
func NewStaticAuthorizer(logins []string, botLogin string) *StaticAuthorizer {
	allowed := make(map[string]struct{}, len(logins))
	for _, login := range logins {
		if login != "" {
			allowed[login] = struct{}{}
		}
	}
	return &StaticAuthorizer{allowed: allowed, botLogin: botLogin}
}

// IsAuthorized implements Authorizer.
func (a *StaticAuthorizer) IsAuthorized(login string) bool {
	if login == "" || login == a.botLogin {
		return false
	}
	_, ok := a.allowed[login]
	return ok
}
