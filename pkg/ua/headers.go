package ua

// RequestHeader is the common header prefixing every OPC UA service
// request (Spec Section 4.4.2, 4.3.1's OPN request). Diagnostic and audit
// fields are out of this core's scope (Spec Section 1 non-goals) and are
// not modeled; AdditionalHeader is always encoded as a null ExtensionObject.
type RequestHeader struct {
	AuthenticationToken NodeID
	Timestamp           DateTimeTicks64
	RequestHandle       uint32
	ReturnDiagnostics   uint32
	TimeoutHint         uint32
}

// DateTimeTicks64 is the raw wire representation of DateTime: a signed
// 64-bit count of 100ns ticks since 1601-01-01 UTC (Spec Section 4.1).
type DateTimeTicks64 int64

func (h RequestHeader) Encode(b *Buffer) error {
	if err := h.AuthenticationToken.Encode(b); err != nil {
		return err
	}
	if err := PutInt64(b, int64(h.Timestamp)); err != nil {
		return err
	}
	if err := PutUint32(b, h.RequestHandle); err != nil {
		return err
	}
	if err := PutUint32(b, h.ReturnDiagnostics); err != nil {
		return err
	}
	if err := PutStringPtr(b, nil); err != nil { // auditEntryId: null
		return err
	}
	if err := PutUint32(b, h.TimeoutHint); err != nil {
		return err
	}
	// AdditionalHeader: ExtensionObject with a null NodeId and no body.
	if err := (NodeID{Kind: NodeIDKindNumeric}).Encode(b); err != nil {
		return err
	}
	return PutByte(b, 0x00) // encoding byte: no body present
}

func DecodeRequestHeader(b *Buffer) (RequestHeader, error) {
	var h RequestHeader
	var err error
	if h.AuthenticationToken, err = DecodeNodeID(b); err != nil {
		return RequestHeader{}, err
	}
	ticks, err := GetInt64(b)
	if err != nil {
		return RequestHeader{}, err
	}
	h.Timestamp = DateTimeTicks64(ticks)
	if h.RequestHandle, err = GetUint32(b); err != nil {
		return RequestHeader{}, err
	}
	if h.ReturnDiagnostics, err = GetUint32(b); err != nil {
		return RequestHeader{}, err
	}
	if _, err = GetStringPtr(b); err != nil { // auditEntryId
		return RequestHeader{}, err
	}
	if h.TimeoutHint, err = GetUint32(b); err != nil {
		return RequestHeader{}, err
	}
	if _, err = DecodeNodeID(b); err != nil { // AdditionalHeader type id
		return RequestHeader{}, err
	}
	if _, err = GetByte(b); err != nil { // AdditionalHeader encoding byte
		return RequestHeader{}, err
	}
	return h, nil
}

// ResponseHeader is the common header prefixing every OPC UA service
// response.
type ResponseHeader struct {
	Timestamp     DateTimeTicks64
	RequestHandle uint32
	ServiceResult StatusCode
}

func (h ResponseHeader) Encode(b *Buffer) error {
	if err := PutInt64(b, int64(h.Timestamp)); err != nil {
		return err
	}
	if err := PutUint32(b, h.RequestHandle); err != nil {
		return err
	}
	if err := PutUint32(b, uint32(h.ServiceResult)); err != nil {
		return err
	}
	if err := (&DiagnosticInfo{}).Encode(b); err != nil { // ServiceDiagnostics: all-absent
		return err
	}
	if err := PutInt32(b, -1); err != nil { // StringTable: null array
		return err
	}
	if err := (NodeID{Kind: NodeIDKindNumeric}).Encode(b); err != nil { // AdditionalHeader type id
		return err
	}
	return PutByte(b, 0x00)
}

func DecodeResponseHeader(b *Buffer) (ResponseHeader, error) {
	var h ResponseHeader
	ticks, err := GetInt64(b)
	if err != nil {
		return ResponseHeader{}, err
	}
	h.Timestamp = DateTimeTicks64(ticks)
	if h.RequestHandle, err = GetUint32(b); err != nil {
		return ResponseHeader{}, err
	}
	code, err := GetUint32(b)
	if err != nil {
		return ResponseHeader{}, err
	}
	h.ServiceResult = StatusCode(code)
	if _, err = DecodeDiagnosticInfo(b); err != nil {
		return ResponseHeader{}, err
	}
	if _, err = GetInt32(b); err != nil { // StringTable length
		return ResponseHeader{}, err
	}
	if _, err = DecodeNodeID(b); err != nil {
		return ResponseHeader{}, err
	}
	if _, err = GetByte(b); err != nil {
		return ResponseHeader{}, err
	}
	return h, nil
}
