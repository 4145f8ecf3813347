package metaapi

import (
	"github.com/mailru/easyjson/jlexer"
)

// packetInfo is the routing metadata of an inbound packet. It is scanned with
// jlexer so the response path never decodes full payloads into maps.
type packetInfo struct {
	Type           string
	AccountID      string
	RequestID      string
	SequenceNumber int64
	HasSequence    bool
}

// scanPacketInfo extracts routing fields from a raw JSON packet, skipping the
// rest of the payload.
func scanPacketInfo(data []byte) (packetInfo, error) {
	in := jlexer.Lexer{Data: data}
	var p packetInfo
	in.Delim('{')
	for !in.IsDelim('}') {
		key := in.UnsafeFieldName(false)
		in.WantColon()
		if in.IsNull() {
			in.Skip()
			in.WantComma()
			continue
		}
		switch key {
		case "type":
			p.Type = in.String()
		case "accountId":
			p.AccountID = in.String()
		case "requestId":
			p.RequestID = in.String()
		case "sequenceNumber":
			p.SequenceNumber = in.Int64()
			p.HasSequence = true
		default:
			in.SkipRecursive()
		}
		in.WantComma()
	}
	in.Delim('}')
	return p, in.Error()
}
