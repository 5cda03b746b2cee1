// opcua-client connects to an OPC UA Secure Conversation server, opens a
// secure channel with SecurityPolicyURI "None", creates and activates a
// session (anonymous, or username/password when -user is given), and asks
// the server for its endpoints before closing down cleanly.
//
// Usage:
//
//	opcua-client [options]
//
// Options:
//
//	-addr           server address to dial (default "localhost:4840")
//	-endpoint-url   endpoint URL to present at HEL and request at GetEndpoints (default "opc.tcp://localhost:4840")
//	-user           username to activate with (optional; anonymous otherwise)
//	-password       password for -user
//	-timeout        deadline for each request (default "5s")
package main

import (
	"log"
	"time"

	"flag"

	"github.com/pion/logging"

	"github.com/uasc/opcua-sc/pkg/dispatch"
	"github.com/uasc/opcua-sc/pkg/opcua"
	"github.com/uasc/opcua-sc/pkg/securechannel"
)

func main() {
	addr := flag.String("addr", "localhost:4840", "server address to dial")
	endpointURL := flag.String("endpoint-url", "opc.tcp://localhost:4840", "endpoint URL")
	user := flag.String("user", "", "username to activate with (anonymous if empty)")
	password := flag.String("password", "", "password for -user")
	timeout := flag.Duration("timeout", 5*time.Second, "deadline for each request")
	flag.Parse()

	loggerFactory := logging.NewDefaultLoggerFactory()

	client := opcua.NewClient(opcua.ClientConfig{
		ServerAddr:  *addr,
		EndpointURL: *endpointURL,
		Channel: securechannel.SecureChannelConfig{
			PeerURL:           *endpointURL,
			SecurityPolicyURI: "http://opcfoundation.org/UA/SecurityPolicy#None",
			SecurityMode:      securechannel.SecurityModeNone,
			Profile:           &securechannel.DefaultCryptoProfile{},
			RequestedLifetime: 10 * time.Minute,
		},
		SessionTimeout: 60 * time.Second,
		LoggerFactory:  loggerFactory,
		OnEvent: func(e dispatch.Event) {
			log.Printf("event: %s channel=%d session=%d err=%v", e.Kind, e.ChannelID, e.SessionID, e.Err)
		},
	})
	defer client.Close()

	if err := client.Connect(time.Now().Add(*timeout)); err != nil {
		log.Fatalf("connect: %v", err)
	}
	log.Printf("secure channel open to %s", *addr)

	endpoints, err := client.GetEndpoints(*endpointURL, time.Now().Add(*timeout))
	if err != nil {
		log.Fatalf("get endpoints: %v", err)
	}
	for _, ep := range endpoints {
		log.Printf("endpoint: %s policy=%s mode=%d", ep.EndpointURL, ep.SecurityPolicyURI, ep.SecurityMode)
	}

	if _, err := client.CreateSession(time.Now().Add(*timeout)); err != nil {
		log.Fatalf("create session: %v", err)
	}

	tokenType := securechannel.UserTokenAnonymous
	var identityToken []byte
	if *user != "" {
		tokenType = securechannel.UserTokenUserName
		identityToken, err = opcua.EncodeUsernameIdentityToken(*user, []byte(*password))
		if err != nil {
			log.Fatalf("encode identity token: %v", err)
		}
	}
	if err := client.ActivateSession(tokenType, identityToken, time.Now().Add(*timeout)); err != nil {
		log.Fatalf("activate session: %v", err)
	}
	log.Println("session activated")

	if err := client.CloseSession(false, time.Now().Add(*timeout)); err != nil {
		log.Fatalf("close session: %v", err)
	}
	log.Println("session closed")
}
