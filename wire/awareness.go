package wire

func encodeAwarenessStep(e *Encoder, s *AwarenessStep) error {
	e.WriteUint8(uint8(s.Tag))
	switch s.Tag {
	case AwarenessUpdate:
		e.WriteVarBytes(s.Update)
	case AwarenessRequest:
		// empty body
	default:
		return malformed(e.Len()-1, "unknown awareness-step tag")
	}
	return nil
}

func decodeAwarenessStep(d *Decoder) (*AwarenessStep, error) {
	tagOffset := d.Offset()
	tag, err := d.ReadUint8()
	if err != nil {
		return nil, err
	}
	s := &AwarenessStep{Tag: AwarenessStepTag(tag)}
	switch s.Tag {
	case AwarenessUpdate:
		s.Update, err = d.ReadVarBytes()
	case AwarenessRequest:
		// empty body
	default:
		return nil, malformed(tagOffset, "unknown awareness-step tag")
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}
