package protocol

import (
	"bufio"
	"bytes"
	"encoding/json"
)

// JSONCodec speaks the structured encoding: one JSON object per frame,
// UTF-8, terminated by a newline. The object carries the op code and a
// payload document:
//
//	{"op_code":"send_message","payload":{"recipient":"bob","body":"hi"}}
//
// Server frames use the response tag as the op code ("ok", "error",
// "new_message").
type JSONCodec struct{}

func (JSONCodec) Name() string { return "json" }

type jsonFrame struct {
	OpCode  string      `json:"op_code"`
	Payload jsonPayload `json:"payload"`
}

type jsonPayload struct {
	Username  string    `json:"username,omitempty"`
	Password  string    `json:"password,omitempty"`
	Recipient string    `json:"recipient,omitempty"`
	Body      string    `json:"body,omitempty"`
	MessageID uint64    `json:"message_id,omitempty"`
	Count     uint64    `json:"count,omitempty"`
	Error     string    `json:"error,omitempty"`
	Messages  []Message `json:"messages,omitempty"`
	Accounts  []string  `json:"accounts,omitempty"`
}

func (JSONCodec) EncodeRequest(req *Request) ([]byte, error) {
	frame := jsonFrame{
		OpCode: string(req.Op),
		Payload: jsonPayload{
			Username:  req.Username,
			Password:  req.Password,
			Recipient: req.Recipient,
			Body:      req.Body,
			MessageID: req.MessageID,
		},
	}
	return marshalFrame(frame)
}

func (JSONCodec) EncodeResponse(resp *Response) ([]byte, error) {
	frame := jsonFrame{
		OpCode: string(resp.Kind),
		Payload: jsonPayload{
			Error:     resp.Error,
			MessageID: resp.MessageID,
			Count:     resp.Count,
			Messages:  resp.Messages,
			Accounts:  resp.Accounts,
		},
	}
	return marshalFrame(frame)
}

func marshalFrame(frame jsonFrame) ([]byte, error) {
	data, err := json.Marshal(frame)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

func (c JSONCodec) DecodeRequest(r *bufio.Reader) (*Request, error) {
	frame, err := readJSONFrame(r)
	if err != nil {
		return nil, err
	}

	op := Op(frame.OpCode)
	if !ValidOp(op) {
		return nil, decodeErrf("unknown op_code %q", frame.OpCode)
	}

	return &Request{
		Op:        op,
		Username:  frame.Payload.Username,
		Password:  frame.Payload.Password,
		Recipient: frame.Payload.Recipient,
		Body:      frame.Payload.Body,
		MessageID: frame.Payload.MessageID,
	}, nil
}

func (c JSONCodec) DecodeResponse(r *bufio.Reader) (*Response, error) {
	frame, err := readJSONFrame(r)
	if err != nil {
		return nil, err
	}

	kind := Kind(frame.OpCode)
	if !ValidKind(kind) {
		return nil, decodeErrf("unknown response op_code %q", frame.OpCode)
	}

	return &Response{
		Kind:      kind,
		Error:     frame.Payload.Error,
		MessageID: frame.Payload.MessageID,
		Count:     frame.Payload.Count,
		Messages:  frame.Payload.Messages,
		Accounts:  frame.Payload.Accounts,
	}, nil
}

func readJSONFrame(r *bufio.Reader) (*jsonFrame, error) {
	line, err := readLineBounded(r, MaxFrameSize)
	if err != nil {
		return nil, err
	}

	line = bytes.TrimRight(line, "\r\n")
	if len(line) > MaxFrameSize {
		return nil, fatalDecodeErrf("frame exceeds %d bytes", MaxFrameSize)
	}

	frame := &jsonFrame{}
	if err := json.Unmarshal(line, frame); err != nil {
		// The line was fully consumed, so the stream stays in sync.
		return nil, decodeErrf("malformed JSON frame: %v", err)
	}
	return frame, nil
}

// readLineBounded reads up to and including the next '\n'. Unlike
// bufio.Reader.ReadBytes it stops buffering as soon as max bytes arrive
// without a terminator, so a peer streaming an endless line cannot grow
// the frame buffer without bound.
func readLineBounded(r *bufio.Reader, max int) ([]byte, error) {
	var line []byte
	for {
		chunk, err := r.ReadSlice('\n')
		line = append(line, chunk...)
		switch err {
		case nil:
			return line, nil
		case bufio.ErrBufferFull:
			if len(line) > max {
				return nil, fatalDecodeErrf("frame exceeds %d bytes", max)
			}
		default:
			// A torn line without a terminator is an I/O error,
			// not a decode error; surface it as-is.
			return nil, err
		}
	}
}
