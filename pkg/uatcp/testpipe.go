package uatcp

import (
	"net"
	"time"

	"github.com/pion/transport/v3/test"
)

// NewTestPipe returns a pair of in-memory net.Conn endpoints wired
// together, for exercising Dial/Accept and the secure-channel/session
// layers above this package without real sockets. Adapted from the
// teacher's transport.Pipe helper (pkg/transport/pipe.go), trimmed to
// just the pion/transport/v3/test.Bridge it wraps: this package's tests
// need a raw connection pair, not the network-condition simulation or
// background auto-tick loop the original transport layer's tests use.
func NewTestPipe() (net.Conn, net.Conn) {
	bridge := test.NewBridge()
	go pumpBridge(bridge)
	return bridge.GetConn0(), bridge.GetConn1()
}

// pumpBridge repeatedly ticks the bridge so queued writes are delivered
// without the caller having to drive it manually. It never exits, so
// tests should treat a pipe as scoped to the test process rather than
// explicitly tearing down the pump goroutine.
func pumpBridge(bridge *test.Bridge) {
	for {
		if bridge.Tick() == 0 {
			time.Sleep(time.Millisecond)
		}
	}
}
