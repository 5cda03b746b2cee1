package uatcp

import "testing"

func TestReassemblyTableAssemblesAcrossChunks(t *testing.T) {
	tbl := NewReassemblyTable()
	limits := Limits{MaxMessageSize: 0, MaxChunkCount: 0}

	chunk1 := CommonHeader{MessageType: MessageTypeMessage, ChunkType: ChunkIntermediate}
	out, err := tbl.Feed(chunk1, 7, 42, []byte("hello "), limits)
	if err != nil {
		t.Fatalf("Feed chunk1: %v", err)
	}
	if out != nil {
		t.Fatalf("message should not be complete yet")
	}

	chunk2 := CommonHeader{MessageType: MessageTypeMessage, ChunkType: ChunkFinal}
	out, err = tbl.Feed(chunk2, 7, 42, []byte("world"), limits)
	if err != nil {
		t.Fatalf("Feed chunk2: %v", err)
	}
	if out == nil {
		t.Fatalf("message should be complete")
	}
	if string(out.Bytes()) != "hello world" {
		t.Fatalf("got %q, want %q", out.Bytes(), "hello world")
	}

	if _, ok := tbl.inflight[reassemblyKey{channelID: 7, requestID: 42}]; ok {
		t.Fatalf("completed reassembly should be cleared from the table")
	}
}

func TestReassemblyTableEnforcesMaxChunkCount(t *testing.T) {
	tbl := NewReassemblyTable()
	limits := Limits{MaxChunkCount: 1}

	chunk1 := CommonHeader{MessageType: MessageTypeMessage, ChunkType: ChunkIntermediate}
	if _, err := tbl.Feed(chunk1, 1, 1, []byte("a"), limits); err != nil {
		t.Fatalf("Feed chunk1: %v", err)
	}
	chunk2 := CommonHeader{MessageType: MessageTypeMessage, ChunkType: ChunkFinal}
	if _, err := tbl.Feed(chunk2, 1, 1, []byte("b"), limits); err != ErrChunkCountExceeded {
		t.Fatalf("got %v, want ErrChunkCountExceeded", err)
	}
}

func TestReassemblyTableEnforcesMaxMessageSize(t *testing.T) {
	tbl := NewReassemblyTable()
	limits := Limits{MaxMessageSize: 4}

	chunk := CommonHeader{MessageType: MessageTypeMessage, ChunkType: ChunkFinal}
	if _, err := tbl.Feed(chunk, 1, 1, []byte("toolong"), limits); err != ErrMessageSizeExceeded {
		t.Fatalf("got %v, want ErrMessageSizeExceeded", err)
	}
}

func TestReassemblyTableDropsOnAbort(t *testing.T) {
	tbl := NewReassemblyTable()
	limits := Limits{}

	chunk1 := CommonHeader{MessageType: MessageTypeMessage, ChunkType: ChunkIntermediate}
	if _, err := tbl.Feed(chunk1, 1, 1, []byte("partial"), limits); err != nil {
		t.Fatalf("Feed chunk1: %v", err)
	}
	abort := CommonHeader{MessageType: MessageTypeMessage, ChunkType: ChunkAbort}
	out, err := tbl.Feed(abort, 1, 1, nil, limits)
	if err != nil {
		t.Fatalf("Feed abort: %v", err)
	}
	if out != nil {
		t.Fatalf("aborted message must not be delivered")
	}
	if _, ok := tbl.inflight[reassemblyKey{channelID: 1, requestID: 1}]; ok {
		t.Fatalf("aborted reassembly should be cleared from the table")
	}
}
