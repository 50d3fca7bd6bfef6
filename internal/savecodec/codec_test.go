package savecodec

import (
	"errors"
	"strings"
	"testing"

	"github.com/MJE43/guessrun/internal/engine"
	"github.com/MJE43/guessrun/internal/game"
)

func startedSession(t *testing.T) *game.Session {
	t.Helper()
	seeds := engine.Seeds{Server: "codec-server", Client: "codec-client"}
	s, err := game.NewSession(game.Options{Seeds: &seeds, StartingJokers: []string{"lucky_charm", "learning_ai"}})
	if err != nil {
		t.Fatal(err)
	}
	s.StartRun()
	return s
}

func TestEncodeDecode(t *testing.T) {
	s := startedSession(t)
	s.Jokers()[1].Modifier = 0.2

	blob, err := Encode(s.ToSaveData())
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	snap, err := Decode(blob)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	restored, _ := game.NewSession(game.Options{})
	if !restored.LoadFromSaveData(snap) {
		t.Fatal("decoded snapshot rejected by the session")
	}
	if !restored.Run().Cash.Equal(s.Run().Cash) || restored.Round().MysteryNumber != s.Round().MysteryNumber {
		t.Error("restored session differs")
	}
	if j := restored.Jokers(); len(j) != 2 || j[1].Modifier != 0.2 {
		t.Errorf("jokers = %+v", j)
	}
}

func TestDecodeRejects(t *testing.T) {
	valid, err := Encode(startedSession(t).ToSaveData())
	if err != nil {
		t.Fatal(err)
	}
	truncated := valid[:len(valid)/2]

	tests := []struct {
		name string
		blob []byte
	}{
		{"empty", nil},
		{"garbage", []byte("not a zstd frame")},
		{"truncated", truncated},
		{"wrong_payload", encoder.EncodeAll([]byte(`{"version":1}`), nil)},
		{"not_json", encoder.EncodeAll([]byte(`{{`), nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode(tt.blob); !errors.Is(err, ErrInvalidSave) {
				t.Errorf("err = %v, want ErrInvalidSave", err)
			}
		})
	}
}

func TestDecodeJSONSchema(t *testing.T) {
	base := `"seeds":{"server":"a","client":"b"},"cash":"10","rent":"25","round":1,
		"jokers":[],"scripts":[],"arcQueue":["standard"],"currentArc":"standard","monthInArc":1`

	tests := []struct {
		name string
		doc  string
		ok   bool
	}{
		{"minimal", `{"version":1,"level":1,"gameState":"PLAYING",` + base + `}`, true},
		{"numeric_cash", `{"version":1,"level":1,"gameState":"SHOP","heat":3,` + strings.Replace(base, `"10"`, `10.5`, 1) + `}`, true},
		{"level_zero", `{"version":1,"level":0,"gameState":"PLAYING",` + base + `}`, false},
		{"unknown_state", `{"version":1,"level":1,"gameState":"IDLE",` + base + `}`, false},
		{"missing_seeds", `{"version":1,"level":1,"gameState":"PLAYING","cash":"1","rent":"1","round":1,"jokers":[],"scripts":[],"arcQueue":[],"currentArc":"x","monthInArc":1}`, false},
		{"two_sliders", `{"version":1,"level":1,"gameState":"PLAYING","systemSliders":[1,2],` + base + `}`, false},
		{"bad_money", `{"version":1,"level":1,"gameState":"PLAYING",` + base + `,"cash":"lots"}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeJSON([]byte(tt.doc))
			if (err == nil) != tt.ok {
				t.Errorf("err = %v, want ok=%v", err, tt.ok)
			}
		})
	}
}

func TestEncodeNil(t *testing.T) {
	if _, err := Encode(nil); err == nil {
		t.Error("expected error")
	}
}
