// Defines methods/functions to encode/decode the messages clients,
// the publisher and the witnesses exchange. Everything on the wire
// is JSON.

package application

import (
	"encoding/json"

	"github.com/coniks-sys/keywitness/protocol"
)

// MarshalRequest returns a JSON encoding of the client's request.
func MarshalRequest(reqType int, request interface{}) ([]byte, error) {
	return json.Marshal(&protocol.Request{
		Type:    reqType,
		Request: request,
	})
}

// UnmarshalRequest parses a JSON-encoded request msg and
// creates the corresponding protocol.Request, which will be handled
// by the server.
func UnmarshalRequest(msg []byte) (*protocol.Request, error) {
	var content json.RawMessage
	req := protocol.Request{
		Request: &content,
	}
	if err := json.Unmarshal(msg, &req); err != nil {
		return nil, err
	}
	var request interface{}
	switch req.Type {
	case protocol.LookupType:
		request = new(protocol.LookupRequest)
	case protocol.KeyHistoryType:
		request = new(protocol.KeyHistoryRequest)
	case protocol.CertificateQueryType:
		request = new(protocol.CertificateQuery)
	case protocol.AuditType:
		request = new(protocol.AuditRequest)
	case protocol.PublishType:
		request = new(protocol.PublishRequest)
	default:
		return nil, protocol.ErrMalformedMessage
	}
	if err := json.Unmarshal(content, request); err != nil {
		return nil, err
	}
	req.Request = request
	return &req, nil
}

// MarshalResponse returns a JSON encoding of the server's response.
func MarshalResponse(response *protocol.Response) ([]byte, error) {
	return json.Marshal(response)
}

// UnmarshalResponse decodes the given message into a protocol.Response
// according to the given request type t. The request types are integer
// constants defined in the protocol package.
func UnmarshalResponse(t int, msg []byte) *protocol.Response {
	type Response struct {
		Error             protocol.ErrorCode
		DirectoryResponse json.RawMessage
	}
	var res Response
	if err := json.Unmarshal(msg, &res); err != nil {
		return protocol.NewErrorResponse(protocol.ErrMalformedMessage)
	}

	// DirectoryResponse is omitted when Error is in Errors
	if len(res.DirectoryResponse) == 0 || string(res.DirectoryResponse) == "null" {
		if !protocol.Errors[res.Error] {
			return protocol.NewErrorResponse(protocol.ErrMalformedMessage)
		}
		return protocol.NewErrorResponse(res.Error)
	}

	var response protocol.DirectoryResponse
	switch t {
	case protocol.LookupType:
		response = new(protocol.LookupProof)
	case protocol.KeyHistoryType:
		response = new(protocol.KeyHistory)
	case protocol.CertificateQueryType:
		response = new(protocol.Certificate)
	case protocol.AuditType:
		response = new(protocol.Audit)
	case protocol.PublishType:
		response = new(protocol.Published)
	default:
		panic("Unknown request type")
	}
	if err := json.Unmarshal(res.DirectoryResponse, response); err != nil {
		return protocol.NewErrorResponse(protocol.ErrMalformedMessage)
	}
	return &protocol.Response{
		Error:             res.Error,
		DirectoryResponse: response,
	}
}

// MarshalMessage returns a JSON encoding of a peer message.
func MarshalMessage(m *protocol.Message) ([]byte, error) {
	return json.Marshal(m)
}

// UnmarshalMessage parses a peer message and checks that the payload
// its type announces is present.
func UnmarshalMessage(msg []byte) (*protocol.Message, error) {
	m := new(protocol.Message)
	if err := json.Unmarshal(msg, m); err != nil {
		return nil, err
	}
	var ok bool
	switch m.Type {
	case protocol.NotificationType:
		ok = m.Notification != nil
	case protocol.VoteType:
		ok = m.Vote != nil
	case protocol.CertificateType:
		ok = m.Certificate != nil
	case protocol.CertificateRequestType, protocol.ErrorType:
		ok = true
	}
	if !ok || m.From == "" {
		return nil, protocol.ErrMalformedMessage
	}
	return m, nil
}

func malformedClientMsg(err error) *protocol.Response {
	// check if we're just propagating a message
	if code, ok := err.(protocol.ErrorCode); ok && protocol.Errors[code] {
		return protocol.NewErrorResponse(code)
	}
	return protocol.NewErrorResponse(protocol.ErrMalformedMessage)
}
