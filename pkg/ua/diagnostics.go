package ua

// DiagnosticInfo carries optional diagnostic detail alongside a StatusCode.
// Its wire form is an encoding byte whose bits each gate one optional field
// (Spec Part 6 Section 5.2.2.12); unset fields are simply absent from the
// stream, not zero-filled.
type DiagnosticInfo struct {
	SymbolicID          *int32
	NamespaceURI        *int32
	LocalizedText       *int32
	Locale              *int32
	AdditionalInfo      *string
	InnerStatusCode     *StatusCode
	InnerDiagnosticInfo *DiagnosticInfo
}

const (
	diagFlagSymbolicID      byte = 0x01
	diagFlagNamespaceURI    byte = 0x02
	diagFlagLocalizedText   byte = 0x04
	diagFlagLocale          byte = 0x08
	diagFlagAdditionalInfo  byte = 0x10
	diagFlagInnerStatusCode byte = 0x20
	diagFlagInnerDiagInfo   byte = 0x40
)

// Encode writes the DiagnosticInfo's encoding byte followed by whichever
// optional fields it sets.
func (d *DiagnosticInfo) Encode(b *Buffer) error {
	var flags byte
	if d.SymbolicID != nil {
		flags |= diagFlagSymbolicID
	}
	if d.NamespaceURI != nil {
		flags |= diagFlagNamespaceURI
	}
	if d.LocalizedText != nil {
		flags |= diagFlagLocalizedText
	}
	if d.Locale != nil {
		flags |= diagFlagLocale
	}
	if d.AdditionalInfo != nil {
		flags |= diagFlagAdditionalInfo
	}
	if d.InnerStatusCode != nil {
		flags |= diagFlagInnerStatusCode
	}
	if d.InnerDiagnosticInfo != nil {
		flags |= diagFlagInnerDiagInfo
	}
	if err := PutByte(b, flags); err != nil {
		return err
	}
	writers := []struct {
		set bool
		fn  func() error
	}{
		{d.SymbolicID != nil, func() error { return PutInt32(b, *d.SymbolicID) }},
		{d.NamespaceURI != nil, func() error { return PutInt32(b, *d.NamespaceURI) }},
		{d.LocalizedText != nil, func() error { return PutInt32(b, *d.LocalizedText) }},
		{d.Locale != nil, func() error { return PutInt32(b, *d.Locale) }},
		{d.AdditionalInfo != nil, func() error { return PutString(b, *d.AdditionalInfo) }},
		{d.InnerStatusCode != nil, func() error { return PutUint32(b, uint32(*d.InnerStatusCode)) }},
		{d.InnerDiagnosticInfo != nil, func() error { return d.InnerDiagnosticInfo.Encode(b) }},
	}
	for _, w := range writers {
		if w.set {
			if err := w.fn(); err != nil {
				return err
			}
		}
	}
	return nil
}

// DecodeDiagnosticInfo reads a DiagnosticInfo per its encoding byte.
func DecodeDiagnosticInfo(b *Buffer) (*DiagnosticInfo, error) {
	flags, err := GetByte(b)
	if err != nil {
		return nil, err
	}
	d := &DiagnosticInfo{}
	if flags&diagFlagSymbolicID != 0 {
		v, err := GetInt32(b)
		if err != nil {
			return nil, err
		}
		d.SymbolicID = &v
	}
	if flags&diagFlagNamespaceURI != 0 {
		v, err := GetInt32(b)
		if err != nil {
			return nil, err
		}
		d.NamespaceURI = &v
	}
	if flags&diagFlagLocalizedText != 0 {
		v, err := GetInt32(b)
		if err != nil {
			return nil, err
		}
		d.LocalizedText = &v
	}
	if flags&diagFlagLocale != 0 {
		v, err := GetInt32(b)
		if err != nil {
			return nil, err
		}
		d.Locale = &v
	}
	if flags&diagFlagAdditionalInfo != 0 {
		v, err := GetString(b)
		if err != nil {
			return nil, err
		}
		d.AdditionalInfo = &v
	}
	if flags&diagFlagInnerStatusCode != 0 {
		v, err := GetUint32(b)
		if err != nil {
			return nil, err
		}
		sc := StatusCode(v)
		d.InnerStatusCode = &sc
	}
	if flags&diagFlagInnerDiagInfo != 0 {
		inner, err := DecodeDiagnosticInfo(b)
		if err != nil {
			return nil, err
		}
		d.InnerDiagnosticInfo = inner
	}
	return d, nil
}
