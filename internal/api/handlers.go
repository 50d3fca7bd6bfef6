package api

import (
	"errors"
	"io"
	"net/http"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MJE43/guessrun/internal/effects"
	"github.com/MJE43/guessrun/internal/game"
	"github.com/MJE43/guessrun/internal/savecodec"
	"github.com/MJE43/guessrun/internal/store"
)

// lookup resolves the {id} session or writes a 404.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*liveSession, bool) {
	id := chi.URLParam(r, "id")
	ls, ok := s.sessions.get(id)
	if !ok {
		s.errorHandler.HandleNotFound(w, r, ErrTypeSessionNotFound, id)
		return nil, false
	}
	return ls, true
}

// act runs fn under the session lock and reports its outcome.
func (s *Server) act(w http.ResponseWriter, r *http.Request, fn func(g *game.Session) error) {
	ls, ok := s.lookup(w, r)
	if !ok {
		return
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()

	err := fn(ls.game)
	s.respond(w, r, ls, err)
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, ls *liveSession, err error) {
	if errors.Is(err, game.ErrWrongState) {
		s.errorHandler.HandleError(w, r,
			NewError(ErrTypeWrongState, err.Error()).
				WithContext("state", string(ls.game.State())).
				Build(),
			http.StatusConflict)
		return
	}
	resp := ActionResponse{OK: err == nil, View: ls.game.View()}
	if err != nil {
		resp.Error = game.StatusKey(err)
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Seeds != nil && (req.Seeds.Server == "" || req.Seeds.Client == "") {
		s.errorHandler.HandleValidationError(w, r, "seeds", "server and client seeds are required")
		return
	}
	ls, err := s.newSession(req)
	if err != nil {
		s.errorHandler.HandleError(w, r,
			NewError(ErrTypeInvalidParams, err.Error()).WithCause(err).Build(),
			http.StatusBadRequest)
		return
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()
	s.sessions.add(ls)
	if req.Start {
		ls.beginRun(s.db, s.logger)
		ls.game.StartRun()
	}
	s.logger.Printf("session_created session_id=%s started=%v request_id=%s",
		ls.id, req.Start, middleware.GetReqID(r.Context()))
	s.writeJSON(w, http.StatusCreated, SessionResponse{ID: ls.id, RunID: ls.runID, View: ls.game.View()})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	ls, ok := s.lookup(w, r)
	if !ok {
		return
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()
	s.writeJSON(w, http.StatusOK, SessionResponse{ID: ls.id, RunID: ls.runID, View: ls.game.View()})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ls, ok := s.sessions.remove(id)
	if !ok {
		s.errorHandler.HandleNotFound(w, r, ErrTypeSessionNotFound, id)
		return
	}
	ls.mu.Lock()
	ls.close()
	ls.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	ls, ok := s.lookup(w, r)
	if !ok {
		return
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()

	ls.beginRun(s.db, s.logger)
	ls.game.StartRun()
	s.writeJSON(w, http.StatusOK, SessionResponse{ID: ls.id, RunID: ls.runID, View: ls.game.View()})
}

func (s *Server) handleGuess(w http.ResponseWriter, r *http.Request) {
	var req GuessRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Input == nil && req.Guess == nil {
		s.errorHandler.HandleValidationError(w, r, "guess", "input or guess is required")
		return
	}
	s.act(w, r, func(g *game.Session) error {
		if req.Guess != nil {
			return g.MakeGuess(*req.Guess)
		}
		return g.MakeGuessInput(*req.Input)
	})
}

func (s *Server) handleNext(w http.ResponseWriter, r *http.Request) {
	s.act(w, r, (*game.Session).NextAction)
}

func (s *Server) handleOpenShop(w http.ResponseWriter, r *http.Request) {
	s.act(w, r, (*game.Session).OpenShop)
}

func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	var req IndexRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.act(w, r, func(g *game.Session) error { return g.BuyItem(req.Index) })
}

func (s *Server) handleSell(w http.ResponseWriter, r *http.Request) {
	var req SellRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Kind != effects.Passive && req.Kind != effects.Consumable {
		s.errorHandler.HandleValidationError(w, r, "kind", "kind must be passive or consumable")
		return
	}
	s.act(w, r, func(g *game.Session) error { return g.SellItem(req.Kind, req.Index) })
}

func (s *Server) handleReroll(w http.ResponseWriter, r *http.Request) {
	s.act(w, r, (*game.Session).RerollShop)
}

func (s *Server) handleUseScript(w http.ResponseWriter, r *http.Request) {
	var req IndexRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.act(w, r, func(g *game.Session) error { return g.UseScript(req.Index) })
}

func (s *Server) handleOpenApp(w http.ResponseWriter, r *http.Request) {
	var req AppRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.act(w, r, func(g *game.Session) error { return g.OpenApp(req.App) })
}

func (s *Server) handleCloseApp(w http.ResponseWriter, r *http.Request) {
	s.act(w, r, (*game.Session).CloseApp)
}

func (s *Server) handleTrade(w http.ResponseWriter, r *http.Request) {
	var req TradeRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.act(w, r, func(g *game.Session) error { return g.ApplyTradeResult(req.Delta) })
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.act(w, r, func(g *game.Session) error { return g.ApplyScanScore(req.Score) })
}

func (s *Server) handleSliders(w http.ResponseWriter, r *http.Request) {
	var req SlidersRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.act(w, r, func(g *game.Session) error { return g.SetSliders(req.Sliders) })
}

// handleTranscript returns the persisted events of the session's current
// run, or the in-memory transcript when no database is configured.
func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	ls, ok := s.lookup(w, r)
	if !ok {
		return
	}
	limit := queryInt(r, "limit", 100)
	offset := queryInt(r, "offset", 0)

	ls.mu.Lock()
	defer ls.mu.Unlock()

	if s.db == nil || ls.recorder == nil {
		s.writeJSON(w, http.StatusOK, map[string]any{"events": ls.game.Transcript()})
		return
	}
	ls.recorder.Flush(r.Context())
	events, err := s.db.GetEvents(r.Context(), ls.runID, limit, offset)
	if err != nil {
		s.errorHandler.HandleError(w, r, err, http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"runId": ls.runID, "events": events})
}

// handleTranscriptCSV streams the current run's persisted transcript.
func (s *Server) handleTranscriptCSV(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w, r) {
		return
	}
	ls, ok := s.lookup(w, r)
	if !ok {
		return
	}
	ls.mu.Lock()
	runID := ls.runID
	if runID == "" {
		s.respond(w, r, ls, game.ErrWrongState)
		ls.mu.Unlock()
		return
	}
	if ls.recorder != nil {
		ls.recorder.Flush(r.Context())
	}
	ls.mu.Unlock()

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename=\"transcript_"+runID+".csv\"")
	if err := s.db.ExportEventsCSV(r.Context(), w, runID); err != nil {
		s.logger.Printf("transcript export failed run_id=%s: %v", runID, err)
	}
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w, r) {
		return
	}
	var req SaveRequest
	if !s.decode(w, r, &req) {
		return
	}
	ls, ok := s.lookup(w, r)
	if !ok {
		return
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()

	snap := ls.game.ToSaveData()
	if snap == nil {
		s.respond(w, r, ls, game.ErrWrongState)
		return
	}
	blob, err := savecodec.Encode(snap)
	if err != nil {
		s.errorHandler.HandleError(w, r, err, http.StatusInternalServerError)
		return
	}
	slot := &store.Slot{
		ID:    req.SlotID,
		Name:  req.Name,
		RunID: ls.runID,
		Level: snap.Level,
		Round: snap.Round,
		Cash:  snap.Cash.String(),
		State: string(snap.GameState),
		Data:  blob,
	}
	if err := s.db.SaveSlot(r.Context(), slot); err != nil {
		s.errorHandler.HandleError(w, r, err, http.StatusInternalServerError)
		return
	}
	s.logger.Printf("slot_saved slot_id=%s session_id=%s bytes=%d", slot.ID, ls.id, len(blob))
	s.writeJSON(w, http.StatusOK, slot)
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w, r) {
		return
	}
	var req LoadRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.SlotID == "" {
		s.errorHandler.HandleValidationError(w, r, "slotId", "slotId is required")
		return
	}
	ls, ok := s.lookup(w, r)
	if !ok {
		return
	}
	slot, err := s.db.GetSlot(r.Context(), req.SlotID)
	if errors.Is(err, store.ErrNotFound) {
		s.errorHandler.HandleNotFound(w, r, ErrTypeSlotNotFound, req.SlotID)
		return
	}
	if err != nil {
		s.errorHandler.HandleError(w, r, err, http.StatusInternalServerError)
		return
	}
	snap, err := savecodec.Decode(slot.Data)
	if err != nil {
		s.invalidSave(w, r, err)
		return
	}
	s.restore(w, r, ls, snap)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	ls, ok := s.lookup(w, r)
	if !ok {
		return
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()

	snap := ls.game.ToSaveData()
	if snap == nil {
		s.respond(w, r, ls, game.ErrWrongState)
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	ls, ok := s.lookup(w, r)
	if !ok {
		return
	}
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		s.errorHandler.HandleValidationError(w, r, "body", err.Error())
		return
	}
	snap, err := savecodec.DecodeJSON(raw)
	if err != nil {
		s.invalidSave(w, r, err)
		return
	}
	s.restore(w, r, ls, snap)
}

// restore loads snap into the session. A snapshot the session rejects
// leaves it untouched; an accepted one starts a new transcript.
func (s *Server) restore(w http.ResponseWriter, r *http.Request, ls *liveSession, snap *game.Snapshot) {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	// The new run is opened first so save_loaded lands in its transcript.
	prevID, prevRecorder := ls.runID, ls.recorder
	ls.beginRun(s.db, s.logger)
	if !ls.game.LoadFromSaveData(snap) {
		ls.runID, ls.recorder = prevID, prevRecorder
		s.invalidSave(w, r, errors.New("snapshot rejected"))
		return
	}
	s.writeJSON(w, http.StatusOK, SessionResponse{ID: ls.id, RunID: ls.runID, View: ls.game.View()})
}

func (s *Server) invalidSave(w http.ResponseWriter, r *http.Request, err error) {
	s.errorHandler.HandleError(w, r,
		NewError(ErrTypeInvalidSave, err.Error()).WithCause(err).Build(),
		http.StatusUnprocessableEntity)
}

func (s *Server) handleListSlots(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w, r) {
		return
	}
	q := store.SlotsQuery{
		RunID:   r.URL.Query().Get("run_id"),
		Page:    queryInt(r, "page", 1),
		PerPage: queryInt(r, "per_page", 20),
	}
	list, err := s.db.ListSlots(r.Context(), q)
	if err != nil {
		s.errorHandler.HandleError(w, r, err, http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleDeleteSlot(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w, r) {
		return
	}
	id := chi.URLParam(r, "slotID")
	err := s.db.DeleteSlot(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.errorHandler.HandleNotFound(w, r, ErrTypeSlotNotFound, id)
		return
	}
	if err != nil {
		s.errorHandler.HandleError(w, r, err, http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	resp := CatalogResponse{EngineVersion: EngineVersion}
	for _, group := range [][]*effects.Template{s.catalog.Passives(), s.catalog.Consumables()} {
		for _, t := range group {
			resp.Effects = append(resp.Effects, catalogEntry(t))
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, GetVersionInfo())
}

func catalogEntry(t *effects.Template) CatalogEntry {
	seen := make(map[string]bool)
	if t.Execute != nil {
		seen[string(t.Trigger)] = true
	}
	for trig, fn := range t.Hooks {
		if fn != nil {
			seen[string(trig)] = true
		}
	}
	triggers := make([]string, 0, len(seen))
	for trig := range seen {
		triggers = append(triggers, trig)
	}
	sort.Strings(triggers)

	var traits []string
	for _, tr := range []struct {
		flag effects.Trait
		name string
	}{
		{effects.TraitMissShield, "miss_shield"},
		{effects.TraitDebtTolerant, "debt_tolerant"},
		{effects.TraitBossImmune, "boss_immune"},
	} {
		if t.Has(tr.flag) {
			traits = append(traits, tr.name)
		}
	}

	return CatalogEntry{
		ID:          t.ID,
		Kind:        string(t.Kind),
		Price:       t.Price.String(),
		MaxQuantity: t.MaxQuantity,
		Triggers:    triggers,
		Traits:      traits,
	}
}

func (s *Server) requireDB(w http.ResponseWriter, r *http.Request) bool {
	if s.db != nil {
		return true
	}
	s.errorHandler.HandleError(w, r,
		NewError(ErrTypeServiceUnavailable, "Database not configured").Build(),
		http.StatusServiceUnavailable)
	return false
}

func queryInt(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
