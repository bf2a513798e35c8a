package wire

func encodeDocStep(e *Encoder, s *DocStep) error {
	e.WriteUint8(uint8(s.Tag))
	switch s.Tag {
	case DocSyncStep1:
		e.WriteVarBytes(s.StateVector)
	case DocSyncStep2, DocUpdate:
		e.WriteVarBytes(s.Update)
	case DocSyncDone:
		// empty body
	case DocAuthDeny:
		e.WriteUint8(s.Permission)
		e.WriteString(s.Reason)
	default:
		return malformed(e.Len()-1, "unknown doc-step tag")
	}
	return nil
}

func decodeDocStep(d *Decoder) (*DocStep, error) {
	tagOffset := d.Offset()
	tag, err := d.ReadUint8()
	if err != nil {
		return nil, err
	}
	s := &DocStep{Tag: DocStepTag(tag)}
	switch s.Tag {
	case DocSyncStep1:
		s.StateVector, err = d.ReadVarBytes()
	case DocSyncStep2, DocUpdate:
		s.Update, err = d.ReadVarBytes()
	case DocSyncDone:
		// empty body
	case DocAuthDeny:
		s.Permission, err = d.ReadUint8()
		if err == nil {
			s.Reason, err = d.ReadString()
		}
	default:
		return nil, malformed(tagOffset, "unknown doc-step tag")
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}
