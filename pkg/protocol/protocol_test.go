package protocol

import (
	"encoding/json"
	"testing"
)

func TestNewFrame(t *testing.T) {
	tests := []struct {
		name      string
		frameType FrameType
		data      any
		wantErr   bool
	}{
		{"ready", FrameReady, nil, false},
		{"error", FrameError, ErrorData{Message: "boom"}, false},
		{"unmarshalable", FrameRequest, make(chan int), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := NewFrame(tt.frameType, tt.data)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewFrame() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if f.Type != tt.frameType {
				t.Errorf("Type = %v, want %v", f.Type, tt.frameType)
			}
			if f.Timestamp == 0 {
				t.Error("timestamp should be set")
			}
		})
	}
}

func TestRequestFrameArgs(t *testing.T) {
	type opts struct {
		InputSize int `json:"inputSize"`
	}

	f, err := NewRequestFrame("req-1", "detectFace", "video-1", opts{InputSize: 224})
	if err != nil {
		t.Fatalf("NewRequestFrame() error = %v", err)
	}

	raw, err := f.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	parsed, err := ParseFrame(raw)
	if err != nil {
		t.Fatal(err)
	}

	req, err := parsed.Request()
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	if req.Method != "detectFace" || req.RequestID != "req-1" {
		t.Errorf("req = %+v", req)
	}

	var ref string
	if err := req.Arg(0, &ref); err != nil || ref != "video-1" {
		t.Errorf("Arg(0) = %q, %v", ref, err)
	}
	var o opts
	if err := req.Arg(1, &o); err != nil || o.InputSize != 224 {
		t.Errorf("Arg(1) = %+v, %v", o, err)
	}
	if err := req.Arg(2, &o); err == nil {
		t.Error("Arg(2) should fail for a missing argument")
	}
}

func TestResponseFrames(t *testing.T) {
	ok, err := NewResultFrame("a", true)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := ok.Response()
	if err != nil {
		t.Fatal(err)
	}
	if resp.RequestID != "a" || string(resp.Result) != "true" || resp.Error != "" {
		t.Errorf("result response = %+v", resp)
	}

	fail, err := NewFailureFrame("b", "face-api not loaded")
	if err != nil {
		t.Fatal(err)
	}
	resp, err = fail.Response()
	if err != nil {
		t.Fatal(err)
	}
	if resp.RequestID != "b" || resp.Error != "face-api not loaded" {
		t.Errorf("failure response = %+v", resp)
	}
}

func TestErrorMessage(t *testing.T) {
	f, _ := NewErrorFrame("Failed to load face-api.js")
	if got := f.ErrorMessage(); got != "Failed to load face-api.js" {
		t.Errorf("ErrorMessage() = %q", got)
	}

	empty := Frame{Type: FrameError}
	if got := empty.ErrorMessage(); got != "Unknown face API error" {
		t.Errorf("ErrorMessage() on empty = %q", got)
	}
}

func TestInitFrameWireFormat(t *testing.T) {
	f := NewInitFrame("face-api-bridge-x", "gocv")
	raw, _ := f.Bytes()

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatal(err)
	}
	if m["type"] != "FACE_API_BRIDGE_INIT" || m["namespace"] != "face-api-bridge-x" || m["faceApiUrl"] != "gocv" {
		t.Errorf("init frame = %s", raw)
	}
}

func TestStartPayloadDefaults(t *testing.T) {
	m := NewStopMessage()
	p, err := m.StartPayload()
	if err != nil {
		t.Fatal(err)
	}
	if p != (StartPayload{}) {
		t.Errorf("missing payload should decode to zero value, got %+v", p)
	}

	m, err = ParseMessage([]byte(`{"type":"start-detection","payload":{"emotion":"happy","hold":2.5}}`))
	if err != nil {
		t.Fatal(err)
	}
	p, err = m.StartPayload()
	if err != nil {
		t.Fatal(err)
	}
	if m.Type != TypeStartDetection || p.Emotion != "happy" || p.Hold != 2.5 || p.Threshold != 0 {
		t.Errorf("payload = %+v", p)
	}
}

func TestTriggerMessageWireFormat(t *testing.T) {
	m, err := NewTriggerMessage("sad", "", Action{Message: "Take a breath.", CloseTab: true})
	if err != nil {
		t.Fatal(err)
	}
	raw, _ := json.Marshal(m)
	want := `{"type":"emotion-trigger","payload":{"emotion":"sad","action":{"message":"Take a breath.","closeTab":true}}}`
	if string(raw) != want {
		t.Errorf("wire = %s\nwant  %s", raw, want)
	}

	p, err := m.TriggerPayload()
	if err != nil {
		t.Fatal(err)
	}
	if p.Emotion != "sad" || !p.Action.CloseTab {
		t.Errorf("payload = %+v", p)
	}

	if _, err := NewStopMessage().TriggerPayload(); err == nil {
		t.Error("TriggerPayload() without payload should fail")
	}
}

func TestOpenWindowMessage(t *testing.T) {
	raw, _ := json.Marshal(NewOpenWindowMessage("https://example.com"))
	want := `{"type":"open-brainrot-window","url":"https://example.com"}`
	if string(raw) != want {
		t.Errorf("wire = %s, want %s", raw, want)
	}
}
