package protocol

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"
	"time"
)

// BinaryCodec speaks the compact encoding. Frame layout:
//
//	magic byte 0x1D
//	op code        uvarint
//	payload length uvarint
//	payload        sequence of fields
//
// Each field starts with one byte packing a type nibble (high) and a field-id
// nibble (low), followed by the type-specific value:
//
//	0 uvarint      varint value
//	1 string       varint byte length, UTF-8 bytes
//	2 string list  varint count, then per item: varint byte length, bytes
//	3 bool         one byte, 0x01 for true
//	4 message list varint count, then per message: varint byte length of a
//	               nested field sequence using the same field scheme
//
// Zero-valued fields are not encoded; timestamps travel as unix nanoseconds.
type BinaryCodec struct{}

func (BinaryCodec) Name() string { return "binary" }

const binaryMagic = 0x1D

const (
	fieldUsername  = 0
	fieldPassword  = 1
	fieldRecipient = 2
	fieldSender    = 3
	fieldBody      = 4
	fieldMessageID = 5
	fieldCount     = 6
	fieldError     = 7
	fieldMessages  = 8
	fieldAccounts  = 9
	fieldID        = 10
	fieldCreatedAt = 11
	fieldRead      = 12
)

const (
	typeUvarint     = 0
	typeString      = 1
	typeStringList  = 2
	typeBool        = 3
	typeMessageList = 4
)

var opNumbers = map[Op]uint64{
	OpCreateAccount:   0,
	OpLogin:           1,
	OpSendMessage:     2,
	OpListUnreadCount: 3,
	OpListMessages:    4,
	OpDeleteMessage:   5,
	OpListAccounts:    6,
	OpDeleteAccount:   7,
	OpLogout:          8,
}

var kindNumbers = map[Kind]uint64{
	KindOK:         9,
	KindError:      10,
	KindNewMessage: 11,
}

var numberOps = invert(opNumbers)
var numberKinds = invert(kindNumbers)

func invert[K comparable](m map[K]uint64) map[uint64]K {
	out := make(map[uint64]K, len(m))
	for k, v := range m {
		out[v] = k
	}
	return out
}

// --- encoding ---

func appendField(dst []byte, typ, id byte) []byte {
	return append(dst, typ<<4|id)
}

func appendString(dst []byte, id byte, s string) []byte {
	if s == "" {
		return dst
	}
	dst = appendField(dst, typeString, id)
	dst = binary.AppendUvarint(dst, uint64(len(s)))
	return append(dst, s...)
}

func appendUvarint(dst []byte, id byte, v uint64) []byte {
	if v == 0 {
		return dst
	}
	dst = appendField(dst, typeUvarint, id)
	return binary.AppendUvarint(dst, v)
}

func appendBool(dst []byte, id byte, v bool) []byte {
	if !v {
		return dst
	}
	dst = appendField(dst, typeBool, id)
	return append(dst, 1)
}

func appendStringList(dst []byte, id byte, items []string) []byte {
	if len(items) == 0 {
		return dst
	}
	dst = appendField(dst, typeStringList, id)
	dst = binary.AppendUvarint(dst, uint64(len(items)))
	for _, item := range items {
		dst = binary.AppendUvarint(dst, uint64(len(item)))
		dst = append(dst, item...)
	}
	return dst
}

func appendMessage(dst []byte, m *Message) []byte {
	var buf []byte
	buf = appendUvarint(buf, fieldID, m.ID)
	buf = appendString(buf, fieldSender, m.Sender)
	buf = appendString(buf, fieldRecipient, m.Recipient)
	buf = appendString(buf, fieldBody, m.Body)
	if !m.CreatedAt.IsZero() {
		buf = appendUvarint(buf, fieldCreatedAt, uint64(m.CreatedAt.UnixNano()))
	}
	buf = appendBool(buf, fieldRead, m.Read)

	dst = binary.AppendUvarint(dst, uint64(len(buf)))
	return append(dst, buf...)
}

func appendMessageList(dst []byte, id byte, msgs []Message) []byte {
	if len(msgs) == 0 {
		return dst
	}
	dst = appendField(dst, typeMessageList, id)
	dst = binary.AppendUvarint(dst, uint64(len(msgs)))
	for i := range msgs {
		dst = appendMessage(dst, &msgs[i])
	}
	return dst
}

func frame(opNumber uint64, payload []byte) []byte {
	out := make([]byte, 0, len(payload)+8)
	out = append(out, binaryMagic)
	out = binary.AppendUvarint(out, opNumber)
	out = binary.AppendUvarint(out, uint64(len(payload)))
	return append(out, payload...)
}

func (BinaryCodec) EncodeRequest(req *Request) ([]byte, error) {
	num, ok := opNumbers[req.Op]
	if !ok {
		return nil, decodeErrf("unknown op %q", req.Op)
	}

	var payload []byte
	payload = appendString(payload, fieldUsername, req.Username)
	payload = appendString(payload, fieldPassword, req.Password)
	payload = appendString(payload, fieldRecipient, req.Recipient)
	payload = appendString(payload, fieldBody, req.Body)
	payload = appendUvarint(payload, fieldMessageID, req.MessageID)

	return frame(num, payload), nil
}

func (BinaryCodec) EncodeResponse(resp *Response) ([]byte, error) {
	num, ok := kindNumbers[resp.Kind]
	if !ok {
		return nil, decodeErrf("unknown response kind %q", resp.Kind)
	}

	var payload []byte
	payload = appendUvarint(payload, fieldMessageID, resp.MessageID)
	payload = appendUvarint(payload, fieldCount, resp.Count)
	payload = appendString(payload, fieldError, resp.Error)
	payload = appendMessageList(payload, fieldMessages, resp.Messages)
	payload = appendStringList(payload, fieldAccounts, resp.Accounts)

	return frame(num, payload), nil
}

// --- decoding ---

// binaryFields holds every decodable field; request and response decoding
// pick the ones they care about.
type binaryFields struct {
	username  string
	password  string
	recipient string
	sender    string
	body      string
	messageID uint64
	count     uint64
	errText   string
	messages  []Message
	accounts  []string
	id        uint64
	createdAt uint64
	read      bool
}

func readFrame(r *bufio.Reader) (uint64, []byte, error) {
	magic, err := r.ReadByte()
	if err != nil {
		return 0, nil, err
	}
	if magic != binaryMagic {
		return 0, nil, fatalDecodeErrf("bad magic byte 0x%02X", magic)
	}

	opNumber, err := binary.ReadUvarint(r)
	if err != nil {
		return 0, nil, fatalDecodeErrf("reading op code: %v", err)
	}

	length, err := binary.ReadUvarint(r)
	if err != nil {
		return 0, nil, fatalDecodeErrf("reading payload length: %v", err)
	}
	if length > MaxFrameSize {
		return 0, nil, fatalDecodeErrf("payload of %d bytes exceeds limit", length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, fatalDecodeErrf("reading payload: %v", err)
	}

	return opNumber, payload, nil
}

func (BinaryCodec) DecodeRequest(r *bufio.Reader) (*Request, error) {
	opNumber, payload, err := readFrame(r)
	if err != nil {
		return nil, err
	}

	op, ok := numberOps[opNumber]
	if !ok {
		return nil, decodeErrf("unknown op code %d", opNumber)
	}

	fields, err := parseFields(payload)
	if err != nil {
		return nil, err
	}

	return &Request{
		Op:        op,
		Username:  fields.username,
		Password:  fields.password,
		Recipient: fields.recipient,
		Body:      fields.body,
		MessageID: fields.messageID,
	}, nil
}

func (BinaryCodec) DecodeResponse(r *bufio.Reader) (*Response, error) {
	opNumber, payload, err := readFrame(r)
	if err != nil {
		return nil, err
	}

	kind, ok := numberKinds[opNumber]
	if !ok {
		return nil, decodeErrf("unknown response op code %d", opNumber)
	}

	fields, err := parseFields(payload)
	if err != nil {
		return nil, err
	}

	return &Response{
		Kind:      kind,
		Error:     fields.errText,
		MessageID: fields.messageID,
		Count:     fields.count,
		Messages:  fields.messages,
		Accounts:  fields.accounts,
	}, nil
}

type payloadReader struct {
	data []byte
	off  int
}

func (p *payloadReader) done() bool { return p.off >= len(p.data) }

func (p *payloadReader) byte() (byte, error) {
	if p.off >= len(p.data) {
		return 0, decodeErrf("truncated field data")
	}
	b := p.data[p.off]
	p.off++
	return b, nil
}

func (p *payloadReader) uvarint() (uint64, error) {
	v, n := binary.Uvarint(p.data[p.off:])
	if n <= 0 {
		return 0, decodeErrf("malformed varint")
	}
	p.off += n
	return v, nil
}

func (p *payloadReader) bytes(n uint64) ([]byte, error) {
	if n > math.MaxInt32 || p.off+int(n) > len(p.data) {
		return nil, decodeErrf("field length %d overruns payload", n)
	}
	b := p.data[p.off : p.off+int(n)]
	p.off += int(n)
	return b, nil
}

func (p *payloadReader) string() (string, error) {
	n, err := p.uvarint()
	if err != nil {
		return "", err
	}
	b, err := p.bytes(n)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func parseFields(payload []byte) (*binaryFields, error) {
	fields := &binaryFields{}
	p := &payloadReader{data: payload}

	for !p.done() {
		header, err := p.byte()
		if err != nil {
			return nil, err
		}
		typ := header >> 4
		id := header & 0x0F

		switch typ {
		case typeUvarint:
			v, err := p.uvarint()
			if err != nil {
				return nil, err
			}
			if err := fields.setUvarint(id, v); err != nil {
				return nil, err
			}

		case typeString:
			s, err := p.string()
			if err != nil {
				return nil, err
			}
			if err := fields.setString(id, s); err != nil {
				return nil, err
			}

		case typeBool:
			b, err := p.byte()
			if err != nil {
				return nil, err
			}
			if id != fieldRead {
				return nil, decodeErrf("unexpected bool field %d", id)
			}
			fields.read = b != 0

		case typeStringList:
			count, err := p.uvarint()
			if err != nil {
				return nil, err
			}
			if count > MaxFrameSize {
				return nil, decodeErrf("list of %d items overruns payload", count)
			}
			items := make([]string, 0, count)
			for i := uint64(0); i < count; i++ {
				s, err := p.string()
				if err != nil {
					return nil, err
				}
				items = append(items, s)
			}
			if id != fieldAccounts {
				return nil, decodeErrf("unexpected string-list field %d", id)
			}
			fields.accounts = items

		case typeMessageList:
			count, err := p.uvarint()
			if err != nil {
				return nil, err
			}
			if count > MaxFrameSize {
				return nil, decodeErrf("list of %d items overruns payload", count)
			}
			msgs := make([]Message, 0, count)
			for i := uint64(0); i < count; i++ {
				n, err := p.uvarint()
				if err != nil {
					return nil, err
				}
				nested, err := p.bytes(n)
				if err != nil {
					return nil, err
				}
				m, err := parseMessage(nested)
				if err != nil {
					return nil, err
				}
				msgs = append(msgs, *m)
			}
			if id != fieldMessages {
				return nil, decodeErrf("unexpected message-list field %d", id)
			}
			fields.messages = msgs

		default:
			return nil, decodeErrf("unknown field type %d", typ)
		}
	}

	return fields, nil
}

func (f *binaryFields) setUvarint(id byte, v uint64) error {
	switch id {
	case fieldMessageID:
		f.messageID = v
	case fieldCount:
		f.count = v
	case fieldID:
		f.id = v
	case fieldCreatedAt:
		f.createdAt = v
	default:
		return decodeErrf("unexpected uvarint field %d", id)
	}
	return nil
}

func (f *binaryFields) setString(id byte, s string) error {
	switch id {
	case fieldUsername:
		f.username = s
	case fieldPassword:
		f.password = s
	case fieldRecipient:
		f.recipient = s
	case fieldSender:
		f.sender = s
	case fieldBody:
		f.body = s
	case fieldError:
		f.errText = s
	default:
		return decodeErrf("unexpected string field %d", id)
	}
	return nil
}

func parseMessage(data []byte) (*Message, error) {
	fields, err := parseFields(data)
	if err != nil {
		return nil, err
	}

	m := &Message{
		ID:        fields.id,
		Sender:    fields.sender,
		Recipient: fields.recipient,
		Body:      fields.body,
		Read:      fields.read,
	}
	if fields.createdAt != 0 {
		m.CreatedAt = time.Unix(0, int64(fields.createdAt)).UTC()
	}
	return m, nil
}
