package protocol

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestDecodePing(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"ping","data":{"id":"probe-1","lastPingMs":42}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Type != TypePing {
		t.Fatalf("type = %q, want %q", msg.Type, TypePing)
	}
	if msg.Ping == nil || msg.Ping.ID != "probe-1" || msg.Ping.LastPingMs != 42 {
		t.Fatalf("ping payload = %+v", msg.Ping)
	}
}

func TestDecodePositionIsBareInteger(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"update-position","data":137}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Position != 137 {
		t.Fatalf("position = %d, want 137", msg.Position)
	}
}

func TestDecodeStatisticsKeptVerbatim(t *testing.T) {
	blob := `{"wpm":"98.4","timeStats":[{"time":1,"wpm":97}]}`
	msg, err := Decode([]byte(`{"type":"statistics","data":` + blob + `}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(msg.Stats) != blob {
		t.Fatalf("stats = %s, want %s", msg.Stats, blob)
	}
}

func TestDecodeRejectsUnknownAndServerTags(t *testing.T) {
	for _, raw := range []string{
		`{"type":"teleport","data":{}}`,
		`{"type":"pong","data":{"id":"x","time":1}}`,
		`{"type":"game","data":{}}`,
		`{"type":""}`,
	} {
		if _, err := Decode([]byte(raw)); !errors.Is(err, ErrUnknownType) {
			t.Errorf("Decode(%s) err = %v, want ErrUnknownType", raw, err)
		}
	}
}

func TestDecodeRejectsMalformedPayloads(t *testing.T) {
	for _, raw := range []string{
		`{"type":`,
		`{"type":"ping","data":[1,2]}`,
		`{"type":"update-position","data":"far"}`,
		`{"type":"statistics"}`,
	} {
		if _, err := Decode([]byte(raw)); err == nil {
			t.Errorf("Decode(%s) succeeded, want error", raw)
		}
	}
}

func TestPongEchoesProbeID(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	raw, err := Pong("probe-9", now)
	if err != nil {
		t.Fatalf("pong: %v", err)
	}

	var env struct {
		Type string   `json:"type"`
		Data PongData `json:"data"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.Type != TypePong {
		t.Fatalf("type = %q, want %q", env.Type, TypePong)
	}
	if env.Data.ID != "probe-9" || env.Data.Time != 1700000000123 {
		t.Fatalf("pong data = %+v", env.Data)
	}
}

func TestEncodeRoundTripsEnvelope(t *testing.T) {
	raw, err := Encode(TypeGame, map[string]int{"state": 2})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.Type != TypeGame {
		t.Fatalf("type = %q, want %q", env.Type, TypeGame)
	}
	if string(env.Data) != `{"state":2}` {
		t.Fatalf("data = %s", env.Data)
	}
}
