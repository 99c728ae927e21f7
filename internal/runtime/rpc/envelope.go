package rpc

import (
	"encoding/json"
	"fmt"

	errspkg "github.com/drblury/probeflow/internal/runtime/errors"
	"github.com/drblury/probeflow/internal/runtime/jsoncodec"
)

// Request is the payload of an RPC request message. Correlation id and reply
// address travel as message metadata.
type Request struct {
	Operation  Operation         `json:"operation"`
	Parameters []json.RawMessage `json:"parameters"`
}

// NewRequest encodes params in order.
func NewRequest(op Operation, params ...any) (Request, error) {
	req := Request{Operation: op, Parameters: make([]json.RawMessage, 0, len(params))}
	for i, p := range params {
		raw, err := jsoncodec.Raw(p)
		if err != nil {
			return Request{}, errspkg.Serialization(fmt.Sprintf("encode parameter %d", i), err)
		}
		if raw == nil {
			raw = json.RawMessage("null")
		}
		req.Parameters = append(req.Parameters, raw)
	}
	return req, nil
}

// Param decodes parameter i into v.
func (r Request) Param(i int, v any) error {
	if i < 0 || i >= len(r.Parameters) {
		return errspkg.Serialization(string(r.Operation), fmt.Errorf("missing parameter %d", i))
	}
	if err := jsoncodec.Unmarshal(r.Parameters[i], v); err != nil {
		return errspkg.Serialization(fmt.Sprintf("%s parameter %d", r.Operation, i), err)
	}
	return nil
}

// Response is the payload of an RPC reply. A nil Result is the null marker.
type Response struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error,omitempty"`
}

// NewResponse encodes result. A nil result yields the null marker.
func NewResponse(result any) (Response, error) {
	raw, err := jsoncodec.Raw(result)
	if err != nil {
		return Response{}, errspkg.Serialization("encode result", err)
	}
	return Response{Result: raw}, nil
}

// ErrorResponse builds an error-marked response.
func ErrorResponse(err error) Response {
	return Response{Error: err.Error()}
}

// Err returns the remote error carried by r, wrapped as ErrRemote.
func (r Response) Err() error {
	if r.Error == "" {
		return nil
	}
	return fmt.Errorf("%w: %s", errspkg.ErrRemote, r.Error)
}

// IsNull reports whether the result is the null marker.
func (r Response) IsNull() bool {
	return jsoncodec.IsNull(r.Result)
}

// Decode unmarshals the result into v. A null result leaves v untouched.
func (r Response) Decode(v any) error {
	if err := r.Err(); err != nil {
		return err
	}
	if r.IsNull() {
		return nil
	}
	if err := jsoncodec.Unmarshal(r.Result, v); err != nil {
		return errspkg.Serialization("decode result", err)
	}
	return nil
}

// EncodeRequest serialises req.
func EncodeRequest(req Request) ([]byte, error) {
	if req.Parameters == nil {
		req.Parameters = []json.RawMessage{}
	}
	data, err := jsoncodec.Marshal(req)
	if err != nil {
		return nil, errspkg.Serialization("encode request", err)
	}
	return data, nil
}

// DecodeRequest parses a request payload. The operation must be present.
func DecodeRequest(data []byte) (Request, error) {
	var req Request
	if err := jsoncodec.Unmarshal(data, &req); err != nil {
		return Request{}, errspkg.Serialization("decode request", err)
	}
	if req.Operation == "" {
		return Request{}, errspkg.Serialization("decode request", fmt.Errorf("operation is missing"))
	}
	return req, nil
}

// EncodeResponse serialises resp.
func EncodeResponse(resp Response) ([]byte, error) {
	data, err := jsoncodec.Marshal(resp)
	if err != nil {
		return nil, errspkg.Serialization("encode response", err)
	}
	return data, nil
}

// DecodeResponse parses a response payload.
func DecodeResponse(data []byte) (Response, error) {
	var resp Response
	if err := jsoncodec.Unmarshal(data, &resp); err != nil {
		return Response{}, errspkg.Serialization("decode response", err)
	}
	return resp, nil
}
