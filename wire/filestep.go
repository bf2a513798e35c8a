package wire

// Proof hashes are encoded back-to-back with no per-hash length prefix:
// every Merkle sibling hash in this protocol is a fixed 32-byte SHA-256
// digest, so the proof-length varint fully determines the body length.

func encodeFileStep(e *Encoder, s *FileStep) error {
	e.WriteUint8(uint8(s.Tag))
	switch s.Tag {
	case FileDownloadRequest:
		e.WriteString(s.FileID)
	case FileUploadMetadata:
		e.WriteBool(s.Encrypted)
		e.WriteString(s.FileID)
		e.WriteString(s.Filename)
		e.WriteVarUint(s.Size)
		e.WriteString(s.MimeType)
		e.WriteVarUint(s.LastModified)
	case FilePart:
		e.WriteString(s.FileID)
		e.WriteVarUint(s.ChunkIndex)
		e.WriteVarBytes(s.ChunkData)
		e.WriteVarUint(uint64(len(s.Proof)))
		for _, h := range s.Proof {
			if len(h) != merkleHashSize {
				return malformed(e.Len(), "proof hash must be 32 bytes")
			}
			e.WriteRaw(h)
		}
		e.WriteVarUint(s.TotalChunks)
		e.WriteVarUint(s.BytesUploaded)
		e.WriteBool(s.Encrypted)
	case FileAuthDeny:
		e.WriteUint8(s.Permission)
		e.WriteString(s.FileID)
		e.WriteVarUint(s.StatusCode)
		e.WriteBool(s.HasReason)
		if s.HasReason {
			e.WriteString(s.Reason)
		}
	default:
		return malformed(e.Len()-1, "unknown file-step tag")
	}
	return nil
}

func decodeFileStep(d *Decoder) (*FileStep, error) {
	tagOffset := d.Offset()
	tag, err := d.ReadUint8()
	if err != nil {
		return nil, err
	}
	s := &FileStep{Tag: FileStepTag(tag)}

	switch s.Tag {
	case FileDownloadRequest:
		s.FileID, err = d.ReadString()

	case FileUploadMetadata:
		if s.Encrypted, err = d.ReadBool(); err != nil {
			break
		}
		if s.FileID, err = d.ReadString(); err != nil {
			break
		}
		if s.Filename, err = d.ReadString(); err != nil {
			break
		}
		if s.Size, err = d.ReadVarUint(); err != nil {
			break
		}
		if s.MimeType, err = d.ReadString(); err != nil {
			break
		}
		s.LastModified, err = d.ReadVarUint()

	case FilePart:
		if s.FileID, err = d.ReadString(); err != nil {
			break
		}
		if s.ChunkIndex, err = d.ReadVarUint(); err != nil {
			break
		}
		if s.ChunkData, err = d.ReadVarBytes(); err != nil {
			break
		}
		var proofLen uint64
		if proofLen, err = d.ReadVarUint(); err != nil {
			break
		}
		s.Proof = make([][]byte, proofLen)
		for i := range s.Proof {
			var h []byte
			if h, err = d.ReadRaw(merkleHashSize); err != nil {
				break
			}
			s.Proof[i] = h
		}
		if err != nil {
			break
		}
		if s.TotalChunks, err = d.ReadVarUint(); err != nil {
			break
		}
		if s.BytesUploaded, err = d.ReadVarUint(); err != nil {
			break
		}
		s.Encrypted, err = d.ReadBool()

	case FileAuthDeny:
		if s.Permission, err = d.ReadUint8(); err != nil {
			break
		}
		if s.FileID, err = d.ReadString(); err != nil {
			break
		}
		if s.StatusCode, err = d.ReadVarUint(); err != nil {
			break
		}
		if s.HasReason, err = d.ReadBool(); err != nil {
			break
		}
		if s.HasReason {
			s.Reason, err = d.ReadString()
		}

	default:
		return nil, malformed(tagOffset, "unknown file-step tag")
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}
