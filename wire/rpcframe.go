package wire

func encodeRPCFrame(e *Encoder, r *RPCFrame) error {
	e.WriteString(r.Method)
	e.WriteUint8(uint8(r.ReqType))
	if r.ReqType != RPCRequestKind {
		e.WriteString(r.CorrelationID)
	}
	e.WriteUint8(uint8(r.Status))

	switch r.Status {
	case RPCStatusSuccess:
		e.WriteVarBytes(r.Payload)
	case RPCStatusError:
		e.WriteVarUint(r.ErrStatusCode)
		e.WriteString(r.ErrDetails)
		e.WriteBool(r.ErrHasPayload)
		if r.ErrHasPayload {
			e.WriteVarBytes(r.ErrPayload)
		}
	default:
		return malformed(e.Len()-1, "unknown rpc status")
	}
	return nil
}

func decodeRPCFrame(d *Decoder) (*RPCFrame, error) {
	r := &RPCFrame{}
	var err error

	if r.Method, err = d.ReadString(); err != nil {
		return nil, err
	}
	var reqType uint8
	if reqType, err = d.ReadUint8(); err != nil {
		return nil, err
	}
	r.ReqType = RPCRequestType(reqType)

	if r.ReqType != RPCRequestKind {
		if r.CorrelationID, err = d.ReadString(); err != nil {
			return nil, err
		}
	}

	statusOffset := d.Offset()
	var status uint8
	if status, err = d.ReadUint8(); err != nil {
		return nil, err
	}
	r.Status = RPCStatus(status)

	switch r.Status {
	case RPCStatusSuccess:
		r.Payload, err = d.ReadVarBytes()
	case RPCStatusError:
		if r.ErrStatusCode, err = d.ReadVarUint(); err != nil {
			break
		}
		if r.ErrDetails, err = d.ReadString(); err != nil {
			break
		}
		if r.ErrHasPayload, err = d.ReadBool(); err != nil {
			break
		}
		if r.ErrHasPayload {
			r.ErrPayload, err = d.ReadVarBytes()
		}
	default:
		return nil, malformed(statusOffset, "unknown rpc status")
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}
