package uatcp

import (
	"errors"

	"github.com/uasc/opcua-sc/pkg/ua"
)

// reassemblyKey identifies the in-progress message a chunk belongs to.
// OPN and CLO chunks are never split across more than a handful of chunks
// in practice but the wire format allows it, so they go through the same
// accumulator as MSG chunks, keyed by (channelId, requestId) exactly like
// the teacher's exchange table keys retransmit state by (sessionId,
// exchangeId).
type reassemblyKey struct {
	channelID uint32
	requestID uint32
}

// reassembler accumulates the chunk bodies for one (channelId, requestId)
// pair until a Final chunk arrives, an Abort chunk arrives, or the chunk
// count/message size negotiated limits are exceeded.
type reassembler struct {
	messageType MessageType
	chunks      [][]byte
	totalSize   int
	limits      Limits
}

func newReassembler(mt MessageType, limits Limits) *reassembler {
	return &reassembler{messageType: mt, limits: limits}
}

// addChunk appends one chunk's body (the bytes after the sequence header,
// i.e. the payload only) to the accumulator. It reports whether the
// message is now complete, or an error if a limit was exceeded or the
// chunk type is incompatible with accumulated state.
func (r *reassembler) addChunk(body []byte, ct ChunkType) (complete bool, err error) {
	if ct == ChunkAbort {
		return false, errAbortedByPeer
	}
	r.totalSize += len(body)
	if r.limits.MaxMessageSize != 0 && uint32(r.totalSize) > r.limits.MaxMessageSize {
		return false, ErrMessageSizeExceeded
	}
	r.chunks = append(r.chunks, body)
	if r.limits.MaxChunkCount != 0 && uint32(len(r.chunks)) > r.limits.MaxChunkCount {
		return false, ErrChunkCountExceeded
	}
	return ct == ChunkFinal, nil
}

// assemble concatenates the accumulated chunk bodies into a single Buffer
// ready for decoding by the layer above (securechannel for OPN/MSG/CLO).
func (r *reassembler) assemble() *ua.Buffer {
	b := ua.NewGrowableBuffer(r.totalSize, r.totalSize)
	for _, c := range r.chunks {
		_, _ = b.Write(c)
	}
	b.SetPosition(0)
	return b
}

// errAbortedByPeer is returned from addChunk when the peer sends an Abort
// chunk. Feed discards the partial message and returns (nil, nil), so the
// abort is not reported as an error and the reason carried in the abort
// chunk's own body is not surfaced.
var errAbortedByPeer = errors.New("uatcp: message aborted by peer")

// ReassemblyTable tracks one reassembler per in-flight message on a single
// connection. It is not safe for concurrent use; the connection's single
// receive goroutine owns it exclusively, mirroring the teacher's
// single-goroutine-per-connection read loop.
type ReassemblyTable struct {
	inflight map[reassemblyKey]*reassembler
}

func NewReassemblyTable() *ReassemblyTable {
	return &ReassemblyTable{inflight: make(map[reassemblyKey]*reassembler)}
}

// Feed processes one received chunk, returning the assembled message buffer
// once complete (and clearing the accumulator), or nil if more chunks are
// still expected.
func (t *ReassemblyTable) Feed(ch CommonHeader, channelID, requestID uint32, body []byte, limits Limits) (*ua.Buffer, error) {
	key := reassemblyKey{channelID: channelID, requestID: requestID}
	r, ok := t.inflight[key]
	if !ok {
		if ch.ChunkType == ChunkAbort {
			return nil, nil
		}
		r = newReassembler(ch.MessageType, limits)
		t.inflight[key] = r
	}
	complete, err := r.addChunk(body, ch.ChunkType)
	if err != nil {
		delete(t.inflight, key)
		if err == errAbortedByPeer {
			return nil, nil
		}
		return nil, err
	}
	if !complete {
		return nil, nil
	}
	delete(t.inflight, key)
	return r.assemble(), nil
}

// Discard drops any in-progress reassembly for key, used when the secure
// channel layer rejects a chunk (bad signature, bad sequence number) and
// the partial message must not be delivered.
func (t *ReassemblyTable) Discard(channelID, requestID uint32) {
	delete(t.inflight, reassemblyKey{channelID: channelID, requestID: requestID})
}
