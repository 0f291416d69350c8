// Package protocol defines the wire-level Request/Response model shared by
// the chatline server and clients, and the two interchangeable frame codecs:
// a newline-delimited JSON encoding and a compact binary encoding. Both
// codecs normalize to the same internal types, so the dispatcher and the
// services never know which encoding a connection speaks.
package protocol

import (
	"bufio"
	"fmt"
	"time"
)

// Op names a client-initiated operation. Ops travel on the wire as the
// frame's op code.
type Op string

const (
	OpCreateAccount   Op = "create_account"
	OpLogin           Op = "login"
	OpSendMessage     Op = "send_message"
	OpListUnreadCount Op = "list_unread_count"
	OpListMessages    Op = "list_messages"
	OpDeleteMessage   Op = "delete_message"
	OpListAccounts    Op = "list_accounts"
	OpDeleteAccount   Op = "delete_account"
	OpLogout          Op = "logout"
)

// Kind tags a server-to-client frame.
type Kind string

const (
	KindOK         Kind = "ok"
	KindError      Kind = "error"
	KindNewMessage Kind = "new_message"
)

// Message is one stored chat message. IDs are assigned by the server and are
// strictly increasing across all recipients.
type Message struct {
	ID        uint64    `json:"id"`
	Sender    string    `json:"sender"`
	Recipient string    `json:"recipient"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
	Read      bool      `json:"read"`
}

// Request is the decoded form of one client frame. Only the fields relevant
// to Op are set; the rest stay zero and are omitted on the wire.
type Request struct {
	Op        Op
	Username  string
	Password  string
	Recipient string
	Body      string
	MessageID uint64
}

// Response is the decoded form of one server frame. A Response with
// KindNewMessage is an unsolicited push and carries the delivered message
// in Messages.
type Response struct {
	Kind      Kind
	Error     string
	MessageID uint64
	Count     uint64
	Messages  []Message
	Accounts  []string
}

// Codec encodes and decodes single frames of one wire encoding. Encoded
// frames are self-delimiting, so they can be written verbatim to a socket or
// carried inside a WebSocket message. Implementations are stateless and safe
// for concurrent use.
//
// Empty Messages and Accounts slices are omitted on the wire, so they decode
// back as nil; round-trips preserve values only up to that normalization.
type Codec interface {
	// Name identifies the encoding ("json" or "binary").
	Name() string

	EncodeRequest(req *Request) ([]byte, error)
	EncodeResponse(resp *Response) ([]byte, error)

	// DecodeRequest reads exactly one frame. Malformed frames yield a
	// *DecodeError; transport failures yield the underlying I/O error.
	DecodeRequest(r *bufio.Reader) (*Request, error)
	DecodeResponse(r *bufio.Reader) (*Response, error)
}

// MaxFrameSize bounds a single frame's payload. Oversized frames are treated
// as unrecoverable, since the peer is either broken or hostile.
const MaxFrameSize = 1 << 20

// DecodeError reports a malformed frame. Fatal marks frames after which the
// byte stream can no longer be resynchronized; the connection must be closed.
type DecodeError struct {
	Reason string
	Fatal  bool
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode: %s", e.Reason)
}

func decodeErrf(format string, args ...any) *DecodeError {
	return &DecodeError{Reason: fmt.Sprintf(format, args...)}
}

func fatalDecodeErrf(format string, args ...any) *DecodeError {
	return &DecodeError{Reason: fmt.Sprintf(format, args...), Fatal: true}
}

var requestOps = map[Op]struct{}{
	OpCreateAccount:   {},
	OpLogin:           {},
	OpSendMessage:     {},
	OpListUnreadCount: {},
	OpListMessages:    {},
	OpDeleteMessage:   {},
	OpListAccounts:    {},
	OpDeleteAccount:   {},
	OpLogout:          {},
}

// ValidOp reports whether op is a known client operation.
func ValidOp(op Op) bool {
	_, ok := requestOps[op]
	return ok
}

var responseKinds = map[Kind]struct{}{
	KindOK:         {},
	KindError:      {},
	KindNewMessage: {},
}

// ValidKind reports whether k is a known server frame tag.
func ValidKind(k Kind) bool {
	_, ok := responseKinds[k]
	return ok
}

// CodecByName resolves an encoding name to its codec. Codecs are stateless,
// so the returned values are shared.
func CodecByName(name string) (Codec, bool) {
	switch name {
	case "json":
		return JSONCodec{}, true
	case "binary":
		return BinaryCodec{}, true
	default:
		return nil, false
	}
}
