// Package protocol defines the frames exchanged over the detector bridge and
// the runtime messages exchanged between the session, the dashboard and the
// action executor.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// FrameType identifies a bridge frame.
type FrameType string

const (
	// Session → page world, posted on the control namespace
	FrameInit     FrameType = "FACE_API_BRIDGE_INIT"
	FrameTeardown FrameType = "FACE_API_BRIDGE_TEARDOWN"

	// Page world → session
	FrameReady FrameType = "FACE_API_READY"
	FrameError FrameType = "FACE_API_ERROR"

	// Request/response pair, correlated by requestId
	FrameRequest  FrameType = "REQUEST"
	FrameResponse FrameType = "RESPONSE"
)

// Frame is the envelope for every bridge message.
type Frame struct {
	Type      FrameType       `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Namespace string          `json:"namespace,omitempty"`
	APIURL    string          `json:"faceApiUrl,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// RequestData is the body of a REQUEST frame.
type RequestData struct {
	Method    string            `json:"method"`
	Args      []json.RawMessage `json:"args,omitempty"`
	RequestID string            `json:"requestId"`
}

// ResponseData is the body of a RESPONSE frame. Exactly one of Result and
// Error is meaningful.
type ResponseData struct {
	RequestID string          `json:"requestId"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// ErrorData is the body of a FACE_API_ERROR frame.
type ErrorData struct {
	Message string `json:"message"`
}

// NewFrame creates a frame with the current timestamp.
func NewFrame(t FrameType, data any) (Frame, error) {
	f := Frame{Type: t, Timestamp: time.Now().UnixMilli()}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return Frame{}, fmt.Errorf("failed to marshal frame data: %w", err)
		}
		f.Data = raw
	}
	return f, nil
}

// ParseData unmarshals the frame data into v.
func (f Frame) ParseData(v any) error {
	if f.Data == nil {
		return nil
	}
	return json.Unmarshal(f.Data, v)
}

// Bytes returns the JSON-encoded frame.
func (f Frame) Bytes() ([]byte, error) {
	return json.Marshal(f)
}

// ParseFrame parses a JSON frame.
func ParseFrame(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("failed to parse frame: %w", err)
	}
	return f, nil
}

// NewInitFrame asks the page world to attach a detector to namespace.
func NewInitFrame(namespace, apiURL string) Frame {
	return Frame{
		Type:      FrameInit,
		Timestamp: time.Now().UnixMilli(),
		Namespace: namespace,
		APIURL:    apiURL,
	}
}

// NewTeardownFrame asks the page world to detach from namespace.
func NewTeardownFrame(namespace string) Frame {
	return Frame{
		Type:      FrameTeardown,
		Timestamp: time.Now().UnixMilli(),
		Namespace: namespace,
	}
}

// NewReadyFrame announces that the detection capability is loaded.
func NewReadyFrame() Frame {
	return Frame{Type: FrameReady, Timestamp: time.Now().UnixMilli()}
}

// NewErrorFrame reports that the detection capability failed to load.
func NewErrorFrame(message string) (Frame, error) {
	return NewFrame(FrameError, ErrorData{Message: message})
}

// NewRequestFrame encodes a method call. Each argument is marshalled
// separately so the receiver can decode them positionally.
func NewRequestFrame(requestID, method string, args ...any) (Frame, error) {
	raw := make([]json.RawMessage, 0, len(args))
	for i, a := range args {
		b, err := json.Marshal(a)
		if err != nil {
			return Frame{}, fmt.Errorf("failed to marshal arg %d of %s: %w", i, method, err)
		}
		raw = append(raw, b)
	}
	return NewFrame(FrameRequest, RequestData{
		Method:    method,
		Args:      raw,
		RequestID: requestID,
	})
}

// NewResultFrame answers requestID with a result.
func NewResultFrame(requestID string, result any) (Frame, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return Frame{}, fmt.Errorf("failed to marshal result: %w", err)
	}
	return NewFrame(FrameResponse, ResponseData{RequestID: requestID, Result: raw})
}

// NewFailureFrame answers requestID with an error message.
func NewFailureFrame(requestID, message string) (Frame, error) {
	return NewFrame(FrameResponse, ResponseData{RequestID: requestID, Error: message})
}

// Request extracts the request body of a REQUEST frame.
func (f Frame) Request() (*RequestData, error) {
	var data RequestData
	if err := f.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// Response extracts the response body of a RESPONSE frame.
func (f Frame) Response() (*ResponseData, error) {
	var data ResponseData
	if err := f.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// ErrorMessage returns the message carried by a FACE_API_ERROR frame.
func (f Frame) ErrorMessage() string {
	var data ErrorData
	if err := f.ParseData(&data); err != nil || data.Message == "" {
		return "Unknown face API error"
	}
	return data.Message
}

// Arg decodes positional argument i of a request into v.
func (r *RequestData) Arg(i int, v any) error {
	if i >= len(r.Args) {
		return fmt.Errorf("%s: missing argument %d", r.Method, i)
	}
	if err := json.Unmarshal(r.Args[i], v); err != nil {
		return fmt.Errorf("%s: argument %d: %w", r.Method, i, err)
	}
	return nil
}
