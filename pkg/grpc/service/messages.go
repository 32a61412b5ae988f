package service

import (
	"bytes"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of PutRequest
const (
	putRequestKeyField   protowire.Number = 1
	putRequestValueField protowire.Number = 2
)

// PutRequest carries one key/value write. Its wire encoding is the protobuf
// message `PutRequest { bytes key = 1; bytes value = 2; }`.
type PutRequest struct {
	Key   []byte
	Value []byte
}

func (m *PutRequest) appendWire(b []byte) []byte {
	if len(m.Key) > 0 {
		b = protowire.AppendTag(b, putRequestKeyField, protowire.BytesType)
		b = protowire.AppendBytes(b, m.Key)
	}
	if len(m.Value) > 0 {
		b = protowire.AppendTag(b, putRequestValueField, protowire.BytesType)
		b = protowire.AppendBytes(b, m.Value)
	}
	return b
}

func (m *PutRequest) unmarshalWire(b []byte) error {
	*m = PutRequest{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("put request: %w", protowire.ParseError(n))
		}
		b = b[n:]

		if typ == protowire.BytesType && (num == putRequestKeyField || num == putRequestValueField) {
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return fmt.Errorf("put request: %w", protowire.ParseError(n))
			}
			// The decode buffer may be reused once the handler returns
			if num == putRequestKeyField {
				m.Key = bytes.Clone(v)
			} else {
				m.Value = bytes.Clone(v)
			}
			b = b[n:]
			continue
		}

		// Skip unknown fields
		n = protowire.ConsumeFieldValue(num, typ, b)
		if n < 0 {
			return fmt.Errorf("put request: %w", protowire.ParseError(n))
		}
		b = b[n:]
	}
	return nil
}
