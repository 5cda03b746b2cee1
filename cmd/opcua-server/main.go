// opcua-server runs a minimal OPC UA Secure Conversation server: one
// listener, one endpoint, SecurityPolicyURI "None", anonymous and
// username/password authentication, and a demo EchoService that answers
// any application request it does not otherwise recognize by echoing the
// request's RequestHandle back in a fresh ResponseHeader.
//
// Usage:
//
//	opcua-server [options]
//
// Options:
//
//	-addr           listen address (default ":4840")
//	-endpoint-url   endpoint URL advertised to clients (default "opc.tcp://localhost:4840")
//	-user           username to accept, in addition to anonymous (optional)
//	-password       password for -user
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/pion/logging"

	"github.com/uasc/opcua-sc/pkg/authz"
	"github.com/uasc/opcua-sc/pkg/dispatch"
	"github.com/uasc/opcua-sc/pkg/opcua"
	"github.com/uasc/opcua-sc/pkg/securechannel"
	"github.com/uasc/opcua-sc/pkg/ua"
)

func main() {
	addr := flag.String("addr", ":4840", "listen address")
	endpointURL := flag.String("endpoint-url", "opc.tcp://localhost:4840", "endpoint URL advertised to clients")
	user := flag.String("user", "", "username to accept, in addition to anonymous")
	password := flag.String("password", "", "password for -user")
	flag.Parse()

	loggerFactory := logging.NewDefaultLoggerFactory()

	userTokenPolicies := []securechannel.UserTokenPolicy{
		{Type: securechannel.UserTokenAnonymous, PolicyID: "anonymous"},
	}
	var authnMgr securechannel.AuthenticationManager = authz.AnonymousAuthenticationManager{}
	if *user != "" {
		store := authz.NewMemoryCredentialStore()
		store.SetPassword(*user, []byte(*password))
		authnMgr = &authz.UsernamePasswordAuthenticationManager{Store: store}
		userTokenPolicies = append(userTokenPolicies, securechannel.UserTokenPolicy{Type: securechannel.UserTokenUserName, PolicyID: "username"})
	}

	endpoint := securechannel.EndpointConfig{
		ListenURL: *endpointURL,
		SecurityPolicies: []securechannel.SecurityPolicy{
			{
				PolicyURI:         "http://opcfoundation.org/UA/SecurityPolicy#None",
				Modes:             []securechannel.SecurityMode{securechannel.SecurityModeNone},
				UserTokenPolicies: userTokenPolicies,
				Profile:           &securechannel.DefaultCryptoProfile{},
			},
		},
		AuthenticationMgr: authnMgr,
		AuthorizationMgr:  authz.AllowAllAuthorizationManager{},
	}

	discovery := opcua.StaticDiscoveryHandler{
		Endpoints: []opcua.EndpointDescription{
			{
				EndpointURL:       *endpointURL,
				SecurityPolicyURI: endpoint.SecurityPolicies[0].PolicyURI,
				SecurityMode:      securechannel.SecurityModeNone,
				UserTokenPolicies: userTokenPolicies,
			},
		},
	}

	srv := opcua.NewServer(opcua.ServerConfig{
		ListenAddr:    *addr,
		Endpoint:      endpoint,
		Handler:       echoServiceHandler{},
		Discovery:     discovery,
		LoggerFactory: loggerFactory,
		OnEvent: func(e dispatch.Event) {
			log.Printf("event: %s channel=%d session=%d err=%v", e.Kind, e.ChannelID, e.SessionID, e.Err)
		},
	})

	if err := srv.Start(); err != nil {
		log.Fatalf("failed to start server: %v", err)
	}
	log.Printf("listening on %s, endpoint %q", srv.LocalAddr(), *endpointURL)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Println("shutting down...")
	if err := srv.Stop(); err != nil {
		log.Fatalf("failed to stop server: %v", err)
	}
}

// echoServiceHandler demonstrates the generic ServiceHandler path: any
// application request this server does not specifically recognize is
// answered by copying its RequestHandle into a fresh ResponseHeader under
// the next discriminator value, with an empty body beyond that.
type echoServiceHandler struct{}

func (echoServiceHandler) Handle(requestTypeID uint32, body []byte, user any) ([]byte, error) {
	hdr, err := ua.DecodeRequestHeader(ua.NewBufferFromBytes(body))
	if err != nil {
		return nil, err
	}
	respHeader := ua.ResponseHeader{
		Timestamp:     securechannel.NowTicks(time.Now()),
		RequestHandle: hdr.RequestHandle,
		ServiceResult: ua.Good,
	}
	respTypeNode := ua.NewNumericNodeID(0, requestTypeID+1)
	b := ua.NewGrowableBuffer(64, 4096)
	if err := respTypeNode.Encode(b); err != nil {
		return nil, err
	}
	if err := respHeader.Encode(b); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}
