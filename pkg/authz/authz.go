// Package authz supplies default implementations of the
// AuthenticationManager and AuthorizationManager capability interfaces
// that pkg/securechannel's EndpointConfig consumes (Spec Section 6.2,
// 4.4.5). This core's node model and service business logic are out of
// scope (Spec Section 1), so AuthorizeOperation below is deliberately
// coarse: allow/deny per (user, operation) only; the nodeId and
// attributeId arguments are ignored, with no per-node or per-attribute
// matching of the kind a real address space would need — that finer-grained policy belongs to the
// ServiceHandler capability a server embeds on top of this package.
//
// Grounded on the teacher's pkg/acl: the Store/MemoryStore split (pluggable
// persistence behind a narrow interface, with an in-memory implementation
// for tests and simple deployments) and the Checker's "first entry whose
// subject matches decides; no match denied" evaluation shape are carried over
// from acl.Checker.Check, generalized from Matter's fabric/subject/target
// ACL model to this core's username-keyed Read/Write allow-list.
package authz

import (
	"sync"

	"github.com/uasc/opcua-sc/pkg/securechannel"
)

// UsernameIdentityToken is the decoded form of an ActivateSessionRequest's
// UserIdentityToken when UserIdentityTokenType is UserTokenUserName (Spec
// Section 4.4.5). Decoding the opaque wire bytes into this shape is the
// caller's job (the session/dispatch layer); this package only validates
// already-decoded tokens.
type UsernameIdentityToken struct {
	UserName string
	Password []byte
}

// AnonymousAuthenticationManager accepts only UserTokenAnonymous and
// rejects every other token type, for endpoints that configure no other
// UserTokenPolicy (Spec Section 4.4.5).
type AnonymousAuthenticationManager struct{}

func (AnonymousAuthenticationManager) ValidateUserIdentity(policy securechannel.UserTokenPolicy, token any) (securechannel.AuthResult, error) {
	if policy.Type != securechannel.UserTokenAnonymous {
		return securechannel.AuthRejectedToken, nil
	}
	return securechannel.AuthOk, nil
}

// CredentialStore is the narrow persistence interface behind
// UsernamePasswordAuthenticationManager, mirroring the teacher's
// acl.Store split between a pluggable backing store and an in-memory
// default.
type CredentialStore interface {
	// Lookup returns the expected password for userName, or ok=false if no
	// such user is registered.
	Lookup(userName string) (password []byte, ok bool)
}

// MemoryCredentialStore is an in-memory CredentialStore, grounded on
// acl.MemoryStore's mutex-guarded map shape.
type MemoryCredentialStore struct {
	mu    sync.RWMutex
	creds map[string][]byte
}

// NewMemoryCredentialStore creates an empty store.
func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{creds: make(map[string][]byte)}
}

// SetPassword registers (or replaces) a user's expected password.
func (s *MemoryCredentialStore) SetPassword(userName string, password []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds[userName] = append([]byte(nil), password...)
}

// Lookup implements CredentialStore.
func (s *MemoryCredentialStore) Lookup(userName string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pw, ok := s.creds[userName]
	return pw, ok
}

// UsernamePasswordAuthenticationManager validates UserTokenUserName
// tokens against a CredentialStore. Per Spec Section 4.4.5's preserved
// (if questionable, Spec Section 9 Open Question (c)) original-source
// behavior, it only accepts such tokens when the channel's security
// policy for the identity token is "None" — i.e. the password arrives
// unencrypted over an already-SignAndEncrypt-protected channel rather
// than being additionally encrypted itself; policy.SecurityPolicyURI
// (the UserTokenPolicy's own URI) carries whatever
// the ActivateSessionRequest declared for the user token's own
// encryption, independent of the channel's SecurityPolicyURI.
type UsernamePasswordAuthenticationManager struct {
	Store CredentialStore

	// NonePolicyURI is the security policy URI this manager treats as
	// "no additional encryption" for the user token, defaulting to the
	// standard OPC UA "None" policy URI.
	NonePolicyURI string
}

const defaultNonePolicyURI = "http://opcfoundation.org/UA/SecurityPolicy#None"

// ValidateUserIdentity implements AuthenticationManager.
func (m *UsernamePasswordAuthenticationManager) ValidateUserIdentity(policy securechannel.UserTokenPolicy, token any) (securechannel.AuthResult, error) {
	if policy.Type != securechannel.UserTokenUserName {
		return securechannel.AuthRejectedToken, nil
	}
	noneURI := m.NonePolicyURI
	if noneURI == "" {
		noneURI = defaultNonePolicyURI
	}
	if policy.SecurityPolicyURI != "" && policy.SecurityPolicyURI != noneURI {
		return securechannel.AuthRejectedToken, nil
	}
	tok, ok := token.(UsernameIdentityToken)
	if !ok {
		return securechannel.AuthInvalidToken, nil
	}
	if m.Store == nil {
		return securechannel.AuthAccessDenied, nil
	}
	want, ok := m.Store.Lookup(tok.UserName)
	if !ok {
		return securechannel.AuthAccessDenied, nil
	}
	if !constantTimeEqual(want, tok.Password) {
		return securechannel.AuthAccessDenied, nil
	}
	return securechannel.AuthOk, nil
}

func constantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var diff byte
	for i := range a {
		diff |= a[i] ^ b[i]
	}
	return diff == 0
}

// AllowAllAuthorizationManager grants every operation to every
// authenticated user; suitable for endpoints with SecurityModeNone or
// tests where node-level access control is out of scope.
type AllowAllAuthorizationManager struct{}

func (AllowAllAuthorizationManager) AuthorizeOperation(op securechannel.AuthorizationOperation, nodeID any, attributeID uint32, user any) bool {
	return true
}

// Entry is one allow-list rule: Subject is matched against the user
// identity's string form (by the Checker's SubjectOf func below); Allow
// enumerates the operations this entry grants.
type Entry struct {
	Subject string
	Allow   map[securechannel.AuthorizationOperation]bool
}

// Checker is a minimal per-user allow-list AuthorizationManager, grounded
// on acl.Checker's evaluation shape: the first entry whose Subject matches
// decides, by its Allow[op]; later entries for the same subject are never
// consulted, and no matching entry means denied.
type Checker struct {
	mu      sync.RWMutex
	entries []Entry

	// SubjectOf maps an ActivateSession-bound user identity to the string
	// Entry.Subject is compared against. Defaults to a type switch
	// handling string and UsernameIdentityToken; callers with a richer
	// user-identity type should set this.
	SubjectOf func(user any) string
}

// NewChecker creates an empty Checker.
func NewChecker() *Checker {
	return &Checker{}
}

// SetEntries replaces the entire allow-list. Entries are copied so later
// caller-side mutation of the slice does not affect the Checker.
func (c *Checker) SetEntries(entries []Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append([]Entry(nil), entries...)
}

// AuthorizeOperation implements AuthorizationManager.
func (c *Checker) AuthorizeOperation(op securechannel.AuthorizationOperation, nodeID any, attributeID uint32, user any) bool {
	subject := c.subjectFor(user)
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, e := range c.entries {
		if e.Subject != subject {
			continue
		}
		return e.Allow[op]
	}
	return false
}

func (c *Checker) subjectFor(user any) string {
	if c.SubjectOf != nil {
		return c.SubjectOf(user)
	}
	switch v := user.(type) {
	case string:
		return v
	case UsernameIdentityToken:
		return v.UserName
	default:
		return ""
	}
}
