package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MJE43/guessrun/internal/effects"
	"github.com/MJE43/guessrun/internal/engine"
	"github.com/MJE43/guessrun/internal/scripting"
	"github.com/MJE43/guessrun/internal/state"
	"github.com/MJE43/guessrun/internal/store"
)

func newTestServer(t *testing.T) (*Server, http.Handler) {
	t.Helper()
	db, err := store.NewSQLiteDB(":memory:")
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}
	server := NewServer(Config{DB: db, Logger: log.New(io.Discard, "", 0)})
	return server, server.Routes()
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal request: %v", err)
		}
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return v
}

func createSession(t *testing.T, h http.Handler, start bool) SessionResponse {
	t.Helper()
	w := do(t, h, "POST", "/api/v1/sessions", CreateSessionRequest{
		Seeds: &engine.Seeds{Server: "api-server", Client: "api-client"},
		Start: start,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	return decodeBody[SessionResponse](t, w)
}

// playRound bisects the visible bounds until the round ends.
func playRound(t *testing.T, h http.Handler, id string) ActionResponse {
	t.Helper()
	var resp ActionResponse
	for i := 0; i < 64; i++ {
		w := do(t, h, "GET", "/api/v1/sessions/"+id, nil)
		view := decodeBody[SessionResponse](t, w).View
		if view.State != state.StatePlaying {
			return resp
		}
		if view.Min == nil || view.Max == nil {
			t.Fatalf("Expected visible bounds, got %+v", view)
		}
		guess := (*view.Min + *view.Max) / 2
		w = do(t, h, "POST", "/api/v1/sessions/"+id+"/guess", GuessRequest{Guess: &guess})
		if w.Code != http.StatusOK {
			t.Fatalf("Guess returned %d: %s", w.Code, w.Body.String())
		}
		resp = decodeBody[ActionResponse](t, w)
		if !resp.OK {
			t.Fatalf("Guess %d rejected: %s", guess, resp.Error)
		}
	}
	t.Fatal("Round did not end")
	return resp
}

func TestHealthEndpoints(t *testing.T) {
	_, h := newTestServer(t)

	for _, path := range []string{"/health", "/health/live", "/health/ready"} {
		t.Run(path, func(t *testing.T) {
			w := do(t, h, "GET", path, nil)
			if w.Code != http.StatusOK {
				t.Errorf("Expected status 200, got %d", w.Code)
			}
			if w.Header().Get("X-Engine-Version") == "" {
				t.Error("Expected engine version header")
			}
		})
	}
}

func TestHealthWithoutDatabase(t *testing.T) {
	server := NewServer(Config{Logger: log.New(io.Discard, "", 0)})
	w := do(t, server.Routes(), "GET", "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	resp := decodeBody[HealthCheckResponse](t, w)
	if resp.Status != HealthStatusDegraded {
		t.Errorf("Expected degraded status, got %s", resp.Status)
	}
}

func TestCatalogEndpoint(t *testing.T) {
	_, h := newTestServer(t)

	w := do(t, h, "GET", "/api/v1/catalog", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	resp := decodeBody[CatalogResponse](t, w)
	if len(resp.Effects) == 0 {
		t.Fatal("Expected at least one effect")
	}
	if resp.EngineVersion == "" {
		t.Error("Expected engine version in response")
	}
	for _, e := range resp.Effects {
		if e.Kind != "passive" && e.Kind != "consumable" {
			t.Errorf("Effect %s has kind %q", e.ID, e.Kind)
		}
		if len(e.Triggers) == 0 && len(e.Traits) == 0 {
			t.Errorf("Effect %s has neither triggers nor traits", e.ID)
		}
	}
}

func TestCreateSession(t *testing.T) {
	_, h := newTestServer(t)

	idle := createSession(t, h, false)
	if idle.View.State != state.StateIdle {
		t.Errorf("Expected IDLE, got %s", idle.View.State)
	}
	if idle.RunID != "" {
		t.Errorf("Expected no run id before start, got %q", idle.RunID)
	}

	started := createSession(t, h, true)
	if started.View.State != state.StatePlaying {
		t.Errorf("Expected PLAYING, got %s", started.View.State)
	}
	if started.RunID == "" {
		t.Error("Expected a run id")
	}
	if started.View.MysteryNumber != nil {
		t.Error("Mystery number leaked while playing")
	}
}

func TestCreateSessionValidation(t *testing.T) {
	_, h := newTestServer(t)

	tests := []struct {
		name string
		body string
		code int
	}{
		{"unknown joker", `{"jokers":["no_such_joker"]}`, http.StatusBadRequest},
		{"half seeds", `{"seeds":{"server":"x"}}`, http.StatusBadRequest},
		{"unknown field", `{"bogus":true}`, http.StatusBadRequest},
		{"malformed", `{`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/v1/sessions", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			if w.Code != tt.code {
				t.Errorf("Expected status %d, got %d: %s", tt.code, w.Code, w.Body.String())
			}
		})
	}
}

func TestGuessFlow(t *testing.T) {
	_, h := newTestServer(t)
	sess := createSession(t, h, true)
	base := "/api/v1/sessions/" + sess.ID

	bad := "abc"
	w := do(t, h, "POST", base+"/guess", GuessRequest{Input: &bad})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	resp := decodeBody[ActionResponse](t, w)
	if resp.OK || resp.Error != "invalid_guess" {
		t.Errorf("Expected invalid_guess rejection, got ok=%v error=%q", resp.OK, resp.Error)
	}
	if resp.View.Attempts != 0 {
		t.Errorf("Invalid input consumed an attempt")
	}

	final := playRound(t, h, sess.ID)
	switch final.View.State {
	case state.StateWon, state.StateLostRound:
	default:
		t.Fatalf("Expected round to end, got %s", final.View.State)
	}
	if final.View.MysteryNumber == nil {
		t.Error("Expected mystery number after the round")
	}

	w = do(t, h, "POST", base+"/next", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Next returned %d: %s", w.Code, w.Body.String())
	}
	next := decodeBody[ActionResponse](t, w)
	if final.View.State == state.StateWon && next.View.State != state.StateBrowser {
		t.Errorf("Expected BROWSER after a win, got %s", next.View.State)
	}
	if final.View.State == state.StateLostRound && next.View.Round != 2 {
		t.Errorf("Expected round 2 after a loss, got %d", next.View.Round)
	}
}

func TestWrongStateConflict(t *testing.T) {
	_, h := newTestServer(t)
	sess := createSession(t, h, false)

	guess := 5
	w := do(t, h, "POST", "/api/v1/sessions/"+sess.ID+"/guess", GuessRequest{Guess: &guess})
	if w.Code != http.StatusConflict {
		t.Fatalf("Expected status 409, got %d", w.Code)
	}
	if got := w.Header().Get("X-Error-Type"); got != ErrTypeWrongState {
		t.Errorf("Expected error type %s, got %s", ErrTypeWrongState, got)
	}

	w = do(t, h, "POST", "/api/v1/sessions/"+sess.ID+"/shop/reroll", nil)
	if w.Code != http.StatusConflict {
		t.Errorf("Expected status 409 for reroll, got %d", w.Code)
	}
}

func TestSessionNotFound(t *testing.T) {
	_, h := newTestServer(t)

	tests := []struct {
		method string
		path   string
	}{
		{"GET", "/api/v1/sessions/missing"},
		{"DELETE", "/api/v1/sessions/missing"},
		{"POST", "/api/v1/sessions/missing/next"},
		{"GET", "/api/v1/sessions/missing/export"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := do(t, h, tt.method, tt.path, nil)
			if w.Code != http.StatusNotFound {
				t.Errorf("Expected status 404, got %d", w.Code)
			}
			if got := w.Header().Get("X-Error-Type"); got != ErrTypeSessionNotFound {
				t.Errorf("Expected error type %s, got %s", ErrTypeSessionNotFound, got)
			}
		})
	}
}

func TestDeleteSession(t *testing.T) {
	_, h := newTestServer(t)
	sess := createSession(t, h, true)

	w := do(t, h, "DELETE", "/api/v1/sessions/"+sess.ID, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("Expected status 204, got %d", w.Code)
	}
	w = do(t, h, "GET", "/api/v1/sessions/"+sess.ID, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 after delete, got %d", w.Code)
	}
}

func TestSaveAndLoad(t *testing.T) {
	_, h := newTestServer(t)
	sess := createSession(t, h, true)
	base := "/api/v1/sessions/" + sess.ID

	w := do(t, h, "POST", base+"/save", SaveRequest{Name: "first"})
	if w.Code != http.StatusOK {
		t.Fatalf("Save returned %d: %s", w.Code, w.Body.String())
	}
	slot := decodeBody[store.Slot](t, w)
	if slot.ID == "" {
		t.Fatal("Expected slot id")
	}
	if slot.State != string(state.StatePlaying) || slot.Level != 1 || slot.Round != 1 {
		t.Errorf("Unexpected slot summary %+v", slot)
	}

	played := playRound(t, h, sess.ID)
	if played.View.State == state.StatePlaying {
		t.Fatal("Expected round to end")
	}

	w = do(t, h, "POST", base+"/load", LoadRequest{SlotID: slot.ID})
	if w.Code != http.StatusOK {
		t.Fatalf("Load returned %d: %s", w.Code, w.Body.String())
	}
	loaded := decodeBody[SessionResponse](t, w)
	if loaded.View.State != state.StatePlaying {
		t.Errorf("Expected PLAYING after load, got %s", loaded.View.State)
	}
	if loaded.View.Attempts != 0 || len(loaded.View.History) != 0 {
		t.Errorf("Expected fresh round after load, got attempts=%d history=%v", loaded.View.Attempts, loaded.View.History)
	}
	if loaded.RunID == sess.RunID {
		t.Error("Expected a new transcript after load")
	}

	// replaying the same guesses reaches the same outcome
	again := playRound(t, h, sess.ID)
	if again.View.State != played.View.State || *again.View.MysteryNumber != *played.View.MysteryNumber {
		t.Errorf("Replay diverged: %s/%d vs %s/%d",
			again.View.State, *again.View.MysteryNumber, played.View.State, *played.View.MysteryNumber)
	}

	w = do(t, h, "GET", "/api/v1/slots", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("List returned %d", w.Code)
	}
	if list := decodeBody[store.SlotsList](t, w); list.TotalCount != 1 {
		t.Errorf("Expected 1 slot, got %d", list.TotalCount)
	}

	w = do(t, h, "DELETE", "/api/v1/slots/"+slot.ID, nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", w.Code)
	}
	w = do(t, h, "POST", base+"/load", LoadRequest{SlotID: slot.ID})
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for deleted slot, got %d", w.Code)
	}
}

func TestLoadOpensTranscript(t *testing.T) {
	_, h := newTestServer(t)
	sess := createSession(t, h, true)
	base := "/api/v1/sessions/" + sess.ID

	w := do(t, h, "GET", base+"/export", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Export returned %d", w.Code)
	}
	exported := w.Body.String()

	transcript := func() (string, []store.EventRecord) {
		t.Helper()
		w := do(t, h, "GET", base+"/transcript?limit=500", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("Transcript returned %d", w.Code)
		}
		resp := decodeBody[struct {
			RunID  string              `json:"runId"`
			Events []store.EventRecord `json:"events"`
		}](t, w)
		return resp.RunID, resp.Events
	}

	req := httptest.NewRequest("POST", base+"/import", strings.NewReader(exported))
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("Import returned %d: %s", w.Code, w.Body.String())
	}
	loaded := decodeBody[SessionResponse](t, w)

	runID, events := transcript()
	if runID != loaded.RunID || runID == sess.RunID {
		t.Fatalf("Transcript run %s, want new run %s", runID, loaded.RunID)
	}
	if len(events) == 0 || events[0].Key != "save_loaded" {
		t.Fatalf("Expected save_loaded to open the new transcript, got %v", events)
	}

	rejected := strings.Replace(exported, `"attempts":0`, `"attempts":99`, 1)
	req = httptest.NewRequest("POST", base+"/import", strings.NewReader(rejected))
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("Expected status 422, got %d", w.Code)
	}
	if again, _ := transcript(); again != loaded.RunID {
		t.Errorf("Rejected import moved the transcript to %s", again)
	}
}

func TestSaveIdleSession(t *testing.T) {
	_, h := newTestServer(t)
	sess := createSession(t, h, false)

	w := do(t, h, "POST", "/api/v1/sessions/"+sess.ID+"/save", SaveRequest{Name: "idle"})
	if w.Code != http.StatusConflict {
		t.Errorf("Expected status 409, got %d", w.Code)
	}
}

func TestExportImport(t *testing.T) {
	_, h := newTestServer(t)
	src := createSession(t, h, true)
	dst := createSession(t, h, false)

	w := do(t, h, "GET", "/api/v1/sessions/"+src.ID+"/export", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Export returned %d", w.Code)
	}
	exported := w.Body.Bytes()

	req := httptest.NewRequest("POST", "/api/v1/sessions/"+dst.ID+"/import", bytes.NewReader(exported))
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("Import returned %d: %s", w.Code, w.Body.String())
	}
	imported := decodeBody[SessionResponse](t, w)
	if imported.View.State != src.View.State || imported.View.Cash != src.View.Cash {
		t.Errorf("Imported view %+v does not match source %+v", imported.View, src.View)
	}
	if *imported.View.Min != *src.View.Min || *imported.View.Max != *src.View.Max {
		t.Errorf("Imported bounds differ")
	}

	tests := []struct {
		name string
		body string
	}{
		{"not json", `garbage`},
		{"missing fields", `{"version":1}`},
		{"idle state", strings.Replace(string(exported), `"gameState":"PLAYING"`, `"gameState":"IDLE"`, 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/v1/sessions/"+dst.ID+"/import", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			if w.Code != http.StatusUnprocessableEntity {
				t.Errorf("Expected status 422, got %d", w.Code)
			}
			if got := w.Header().Get("X-Error-Type"); got != ErrTypeInvalidSave {
				t.Errorf("Expected error type %s, got %s", ErrTypeInvalidSave, got)
			}
		})
	}
}

func TestTranscript(t *testing.T) {
	_, h := newTestServer(t)
	sess := createSession(t, h, true)
	playRound(t, h, sess.ID)

	w := do(t, h, "GET", "/api/v1/sessions/"+sess.ID+"/transcript?limit=500", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Transcript returned %d", w.Code)
	}
	resp := decodeBody[struct {
		RunID  string              `json:"runId"`
		Events []store.EventRecord `json:"events"`
	}](t, w)
	if resp.RunID != sess.RunID {
		t.Errorf("Expected run %s, got %s", sess.RunID, resp.RunID)
	}
	if len(resp.Events) == 0 {
		t.Fatal("Expected persisted events")
	}
	for i, ev := range resp.Events {
		if ev.Seq != i+1 {
			t.Errorf("Event %d has seq %d", i, ev.Seq)
			break
		}
	}
	last := resp.Events[len(resp.Events)-1].Key
	if last != "round_won" && last != "round_lost" {
		t.Errorf("Expected the round outcome last, got %q", last)
	}
}

func TestTranscriptCSV(t *testing.T) {
	_, h := newTestServer(t)
	sess := createSession(t, h, true)

	w := do(t, h, "GET", "/api/v1/sessions/"+sess.ID+"/transcript.csv", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/csv" {
		t.Errorf("Content-Type = %q", ct)
	}
	if !strings.HasPrefix(w.Body.String(), "seq,kind,severity,key") {
		t.Errorf("Unexpected CSV header: %q", w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "round_start") {
		t.Error("Expected round_start in transcript")
	}

	idle := createSession(t, h, false)
	w = do(t, h, "GET", "/api/v1/sessions/"+idle.ID+"/transcript.csv", nil)
	if w.Code != http.StatusConflict {
		t.Errorf("Expected status 409 before a run, got %d", w.Code)
	}
}

func TestFeed(t *testing.T) {
	_, h := newTestServer(t)
	ts := httptest.NewServer(h)
	defer ts.Close()
	sess := createSession(t, h, true)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/sessions/" + sess.ID + "/feed"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first feedMessage
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("Read initial view: %v", err)
	}
	if first.Type != "view" {
		t.Fatalf("Expected view message, got %q", first.Type)
	}

	bad := "nope"
	if w := do(t, h, "POST", "/api/v1/sessions/"+sess.ID+"/guess", GuessRequest{Input: &bad}); w.Code != http.StatusOK {
		t.Fatalf("Guess returned %d", w.Code)
	}

	var msg feedMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("Read event: %v", err)
	}
	if msg.Type != "event" || msg.Event == nil || msg.Event.Key != "invalid_guess" {
		t.Errorf("Unexpected feed message %+v", msg)
	}

	w := do(t, h, "DELETE", "/api/v1/sessions/"+sess.ID, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("Delete returned %d", w.Code)
	}
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("Expected the feed to close with the session")
	}
}

func TestThrowingEffectIsRecovered(t *testing.T) {
	defs, err := scripting.LoadPack("broken.js", `register({
		id: "broken_guess", trigger: ON_GUESS,
		execute: function () { throw new Error("boom"); }
	})`)
	if err != nil {
		t.Fatalf("LoadPack: %v", err)
	}
	catalog, err := effects.NewCatalog(append(effects.Builtin(), defs...)...)
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}
	server := NewServer(Config{Catalog: catalog, Logger: log.New(io.Discard, "", 0)})
	h := server.Routes()

	w := do(t, h, "POST", "/api/v1/sessions", CreateSessionRequest{Jokers: []string{"broken_guess"}, Start: true})
	if w.Code != http.StatusCreated {
		t.Fatalf("Create returned %d: %s", w.Code, w.Body.String())
	}
	sess := decodeBody[SessionResponse](t, w)

	guess := *sess.View.Min
	w = do(t, h, "POST", "/api/v1/sessions/"+sess.ID+"/guess", GuessRequest{Guess: &guess})
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("Expected status 500, got %d", w.Code)
	}
	resp := decodeBody[EngineError](t, w)
	if resp.Type != ErrTypeEffectFailed || resp.Context["effect"] != "broken_guess" {
		t.Errorf("Unexpected error %+v", resp)
	}

	// the session lock was released
	w = do(t, h, "GET", "/api/v1/sessions/"+sess.ID, nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200 after recovery, got %d", w.Code)
	}
}
