package protocol

import (
	"testing"
	"time"

	"github.com/teslashibe/gazelog/pkg/gaze"
)

func TestNewMessage(t *testing.T) {
	tests := []struct {
		name    string
		msgType MessageType
		data    interface{}
		wantErr bool
	}{
		{
			name:    "head message",
			msgType: TypeHead,
			data:    HeadData{Forward: Vec3Data{Z: 1}, Up: Vec3Data{Y: 1}},
			wantErr: false,
		},
		{
			name:    "session message",
			msgType: TypeSession,
			data:    SessionEvent{Event: "started", Serial: 3},
			wantErr: false,
		},
		{
			name:    "nil data",
			msgType: TypePing,
			data:    nil,
			wantErr: false,
		},
		{
			name:    "unmarshalable data",
			msgType: TypeTick,
			data:    make(chan int),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := NewMessage(tt.msgType, tt.data)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewMessage() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr {
				return
			}
			if msg.Type != tt.msgType {
				t.Errorf("NewMessage() type = %v, want %v", msg.Type, tt.msgType)
			}
			if msg.Timestamp == 0 {
				t.Error("NewMessage() timestamp should be set")
			}
		})
	}
}

func TestGazeMessageToFrame(t *testing.T) {
	frame := gaze.RawFrame{
		Right:       gaze.RawEye{Origin: gaze.Vec3{X: -32}, Direction: gaze.Vec3{Z: 1}, Openness: 0.9, PupilDiameter: 3},
		Left:        gaze.RawEye{Origin: gaze.Vec3{X: 32}, Direction: gaze.Vec3{Z: 1}, Openness: 0.2, PupilDiameter: 4},
		Combined:    gaze.RawEye{Direction: gaze.Vec3{Z: 1}, Openness: 0.55},
		UserPresent: true,
	}

	msg, err := NewGazeMessage(frame)
	if err != nil {
		t.Fatalf("NewGazeMessage() error = %v", err)
	}
	raw, err := msg.Bytes()
	if err != nil {
		t.Fatalf("Bytes() error = %v", err)
	}

	parsed, err := ParseMessage(raw)
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}
	if parsed.Type != TypeGaze {
		t.Fatalf("Expected gaze message, got %s", parsed.Type)
	}

	data, err := parsed.GetGazeData()
	if err != nil {
		t.Fatalf("GetGazeData() error = %v", err)
	}

	received := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	got := data.Frame(received)
	if !got.Timestamp.Equal(received) {
		t.Errorf("Expected receive timestamp, got %v", got.Timestamp)
	}
	if got.Right != frame.Right || got.Left != frame.Left || got.Combined != frame.Combined {
		t.Errorf("Frame mismatch:\n got %+v\nwant %+v", got, frame)
	}
	if !got.UserPresent {
		t.Error("Expected UserPresent")
	}
}

func TestGazeDataWithoutCombined(t *testing.T) {
	data := GazeData{
		Right: EyeData{Origin: Vec3Data{X: -30}, Direction: Vec3Data{Z: 1}, Openness: 1, PupilDiameter: 3},
		Left:  EyeData{Origin: Vec3Data{X: 30}, Direction: Vec3Data{Z: 1}, Openness: 0.5, PupilDiameter: 5},
	}

	frame := data.Frame(time.Now())
	if frame.Combined.Origin != (gaze.Vec3{}) {
		t.Errorf("Expected combined origin at midpoint, got %v", frame.Combined.Origin)
	}
	if frame.Combined.Openness != 0.75 || frame.Combined.PupilDiameter != 4 {
		t.Errorf("Expected averaged combined eye, got %+v", frame.Combined)
	}
}

func TestHeadMessage(t *testing.T) {
	head := gaze.HeadTransform{
		Position: gaze.Vec3{Y: 1.6},
		Forward:  gaze.Vec3{Z: 1},
		Up:       gaze.Vec3{Y: 1},
	}
	msg, _ := NewHeadMessage(head)
	data, err := msg.GetHeadData()
	if err != nil {
		t.Fatalf("GetHeadData() error = %v", err)
	}
	if data.Transform() != head {
		t.Errorf("Expected %+v, got %+v", head, data.Transform())
	}
}

func TestParseMessage_Invalid(t *testing.T) {
	if _, err := ParseMessage([]byte("not json")); err == nil {
		t.Error("Expected error for invalid JSON")
	}
	if _, err := ParseMessage([]byte(`{"data":{}}`)); err == nil {
		t.Error("Expected error for missing type")
	}
}

func TestPingPong(t *testing.T) {
	ping, _ := NewPingMessage("abc")
	data, err := ping.GetPingData()
	if err != nil || data.ID != "abc" || data.Timestamp == 0 {
		t.Fatalf("Unexpected ping data %+v, %v", data, err)
	}

	pong, _ := NewPongMessage(data.ID, 100, 130)
	var pd PongData
	if err := pong.ParseData(&pd); err != nil {
		t.Fatalf("ParseData() error = %v", err)
	}
	if pd.LatencyMs != 30 {
		t.Errorf("Expected latency 30ms, got %d", pd.LatencyMs)
	}
	if pong.Time().IsZero() {
		t.Error("Expected pong timestamp")
	}
}
