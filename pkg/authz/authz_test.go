package authz

import (
	"testing"

	"github.com/uasc/opcua-sc/pkg/securechannel"
)

func TestAnonymousAuthenticationManagerAcceptsOnlyAnonymous(t *testing.T) {
	var m AnonymousAuthenticationManager
	res, err := m.ValidateUserIdentity(securechannel.UserTokenPolicy{Type: securechannel.UserTokenAnonymous}, nil)
	if err != nil || res != securechannel.AuthOk {
		t.Fatalf("got (%v, %v), want (AuthOk, nil)", res, err)
	}
	res, err = m.ValidateUserIdentity(securechannel.UserTokenPolicy{Type: securechannel.UserTokenUserName}, nil)
	if err != nil || res != securechannel.AuthRejectedToken {
		t.Fatalf("got (%v, %v), want (AuthRejectedToken, nil)", res, err)
	}
}

func TestUsernamePasswordAuthenticationManager(t *testing.T) {
	store := NewMemoryCredentialStore()
	store.SetPassword("alice", []byte("s3cret"))
	m := &UsernamePasswordAuthenticationManager{Store: store}

	policy := securechannel.UserTokenPolicy{Type: securechannel.UserTokenUserName}

	res, err := m.ValidateUserIdentity(policy, UsernameIdentityToken{UserName: "alice", Password: []byte("s3cret")})
	if err != nil || res != securechannel.AuthOk {
		t.Fatalf("got (%v, %v), want AuthOk for correct password", res, err)
	}

	res, err = m.ValidateUserIdentity(policy, UsernameIdentityToken{UserName: "alice", Password: []byte("wrong")})
	if err != nil || res != securechannel.AuthAccessDenied {
		t.Fatalf("got (%v, %v), want AuthAccessDenied for wrong password", res, err)
	}

	res, err = m.ValidateUserIdentity(policy, UsernameIdentityToken{UserName: "bob", Password: []byte("anything")})
	if err != nil || res != securechannel.AuthAccessDenied {
		t.Fatalf("got (%v, %v), want AuthAccessDenied for unknown user", res, err)
	}

	encryptedPolicy := securechannel.UserTokenPolicy{Type: securechannel.UserTokenUserName, SecurityPolicyURI: "http://opcfoundation.org/UA/SecurityPolicy#Basic256Sha256"}
	res, err = m.ValidateUserIdentity(encryptedPolicy, UsernameIdentityToken{UserName: "alice", Password: []byte("s3cret")})
	if err != nil || res != securechannel.AuthRejectedToken {
		t.Fatalf("got (%v, %v), want AuthRejectedToken for a non-None user-token policy", res, err)
	}
}

func TestCheckerFirstMatchWins(t *testing.T) {
	c := NewChecker()
	c.SetEntries([]Entry{
		{Subject: "alice", Allow: map[securechannel.AuthorizationOperation]bool{securechannel.OperationRead: true}},
	})

	if !c.AuthorizeOperation(securechannel.OperationRead, nil, 13, "alice") {
		t.Fatalf("expected alice to be allowed Read")
	}
	if c.AuthorizeOperation(securechannel.OperationWrite, nil, 13, "alice") {
		t.Fatalf("expected alice to be denied Write (not in Allow set)")
	}
	if c.AuthorizeOperation(securechannel.OperationRead, nil, 13, "mallory") {
		t.Fatalf("expected an unlisted subject to be denied")
	}
}

func TestAllowAllAuthorizationManager(t *testing.T) {
	var m AllowAllAuthorizationManager
	if !m.AuthorizeOperation(securechannel.OperationWrite, nil, 1, nil) {
		t.Fatalf("AllowAllAuthorizationManager must allow every operation")
	}
}
