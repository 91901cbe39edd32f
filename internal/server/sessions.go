package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/verdantlabs/greencoach/config"
	"github.com/verdantlabs/greencoach/internal/search"
	"github.com/verdantlabs/greencoach/internal/store"
	"github.com/verdantlabs/greencoach/internal/trainer/core"
	"github.com/verdantlabs/greencoach/internal/trainer/telemetry"
)

// SessionsHandler owns the live training sessions: one controller per
// session, an event buffer for SSE consumers, and the persistence fan-out
// when a run completes.
type SessionsHandler struct {
	Cfg    *config.Config
	LLM    core.LLMProvider
	Search core.SearchTool
	Tele   *telemetry.Telemetry
	Store  *store.Store
	Cache  *store.StatusCache
	Index  *search.Index
	Logger *log.Logger

	mu           sync.Mutex
	sessions     map[string]*session
	activeByUser map[string]string
}

type session struct {
	userID string
	config core.RunConfiguration
	ctrl   *core.Controller

	mu     sync.Mutex
	events []core.Event
	subs   map[chan core.Event]struct{}
	done   bool
}

func NewSessionsHandler(cfg *config.Config, llm core.LLMProvider, searchTool core.SearchTool, tele *telemetry.Telemetry, st *store.Store, cache *store.StatusCache, idx *search.Index) *SessionsHandler {
	return &SessionsHandler{
		Cfg:          cfg,
		LLM:          llm,
		Search:       searchTool,
		Tele:         tele,
		Store:        st,
		Cache:        cache,
		Index:        idx,
		Logger:       log.New(log.Writer(), "[SESSIONS] ", log.LstdFlags),
		sessions:     make(map[string]*session),
		activeByUser: make(map[string]string),
	}
}

func (h *SessionsHandler) Register(g *echo.Group, secret []byte) {
	g.Use(AuthMiddleware(secret))
	g.POST("", h.start)
	g.GET("/:id", h.status)
	g.GET("/:id/events", h.events)
	g.GET("/:id/report", h.report)
}

func (h *SessionsHandler) start(c echo.Context) error {
	var req StartSessionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Industry == "" || req.Jurisdiction == "" || req.Difficulty == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "industry, jurisdiction and difficulty are required")
	}
	uid := userID(c)

	h.mu.Lock()
	if activeID, ok := h.activeByUser[uid]; ok {
		if s, ok := h.sessions[activeID]; ok {
			run, started := s.ctrl.Snapshot()
			if !started || run.Status == core.StatusRunning {
				h.mu.Unlock()
				return echo.NewHTTPError(http.StatusConflict, core.ErrRunInProgress.Error())
			}
			// Each user keeps only their latest session in memory; the
			// finished one stays readable via the store and status cache.
			delete(h.sessions, activeID)
		}
		delete(h.activeByUser, uid)
	}

	rc := core.RunConfiguration{
		SessionID:      core.NewSessionID(time.Now()),
		Industry:       req.Industry,
		Jurisdiction:   req.Jurisdiction,
		Difficulty:     req.Difficulty,
		LearnerProfile: core.LoadLearnerProfile(h.Cfg.Training.KnowledgeDir),
		CreatedAt:      time.Now(),
	}

	s := &session{
		userID: uid,
		config: rc,
		subs:   make(map[chan core.Event]struct{}),
	}
	emitter := core.NewEmitter()
	emitter.Register(core.ListenerFunc(func(ev core.Event) { h.onEvent(s, ev) }))
	s.ctrl = core.NewController(h.Cfg, h.LLM, h.Search, h.Tele, emitter)

	h.sessions[rc.SessionID] = s
	h.activeByUser[uid] = rc.SessionID
	h.mu.Unlock()

	go h.execute(s)

	return c.JSON(http.StatusAccepted, StartSessionResponse{SessionID: rc.SessionID})
}

func (h *SessionsHandler) execute(s *session) {
	ctx := context.Background()
	report, err := s.ctrl.Start(ctx, s.config)
	if err != nil {
		h.Logger.Printf("session %s failed: %v", s.config.SessionID, err)
	} else {
		h.persist(ctx, s, report)
	}
	h.syncCache(ctx, s)
	s.finish()
}

// persist saves the completed report. Storage is capability-checked: a
// missing or failing store degrades to a logged warning, never a run failure.
func (h *SessionsHandler) persist(ctx context.Context, s *session, report *core.TrainingReport) {
	if h.Store == nil {
		return
	}
	id, err := h.Store.SaveReport(ctx, s.userID, s.config, report)
	if err != nil {
		h.Logger.Printf("Warning: could not persist report for %s: %v", s.config.SessionID, err)
		return
	}
	if h.Index != nil {
		if err := h.Index.IndexReport(id, s.config.Jurisdiction, report); err != nil {
			h.Logger.Printf("Warning: could not index report %s: %v", id, err)
		}
	}
}

func (h *SessionsHandler) syncCache(ctx context.Context, s *session) {
	if h.Cache == nil {
		return
	}
	if run, ok := s.ctrl.Snapshot(); ok {
		if err := h.Cache.SetStatus(ctx, run); err != nil {
			h.Logger.Printf("Warning: status cache update failed for %s: %v", s.config.SessionID, err)
		}
	}
}

func (h *SessionsHandler) onEvent(s *session, ev core.Event) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	for ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	s.mu.Unlock()
}

func (s *session) finish() {
	s.mu.Lock()
	s.done = true
	for ch := range s.subs {
		close(ch)
		delete(s.subs, ch)
	}
	s.mu.Unlock()
}

// subscribe returns buffered history plus a live channel; the channel is nil
// when the session already finished.
func (s *session) subscribe() ([]core.Event, chan core.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	history := append([]core.Event(nil), s.events...)
	if s.done {
		return history, nil
	}
	ch := make(chan core.Event, 64)
	s.subs[ch] = struct{}{}
	return history, ch
}

func (s *session) unsubscribe(ch chan core.Event) {
	s.mu.Lock()
	if _, ok := s.subs[ch]; ok {
		delete(s.subs, ch)
		close(ch)
	}
	s.mu.Unlock()
}

func (h *SessionsHandler) lookup(c echo.Context) (*session, error) {
	id := c.Param("id")
	h.mu.Lock()
	s, ok := h.sessions[id]
	h.mu.Unlock()
	if !ok || s.userID != userID(c) {
		return nil, echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	return s, nil
}

func (h *SessionsHandler) status(c echo.Context) error {
	s, err := h.lookup(c)
	if err != nil {
		return err
	}
	run, ok := s.ctrl.Snapshot()
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "session not started")
	}
	return c.JSON(http.StatusOK, SessionStatusResponse{
		SessionID:  run.Config.SessionID,
		Status:     run.Status,
		StageIndex: run.StageIndex,
		Sources:    len(run.Sources),
		Error:      run.Error,
	})
}

func (h *SessionsHandler) events(c echo.Context) error {
	s, err := h.lookup(c)
	if err != nil {
		return err
	}

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)

	write := func(ev core.Event) error {
		b, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(res, "event: %s\ndata: %s\n\n", ev.Type, b); err != nil {
			return err
		}
		res.Flush()
		return nil
	}

	history, live := s.subscribe()
	for _, ev := range history {
		if err := write(ev); err != nil {
			return nil
		}
	}
	if live == nil {
		return nil
	}
	defer s.unsubscribe(live)

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-live:
			if !ok {
				return nil
			}
			if err := write(ev); err != nil {
				return nil
			}
		}
	}
}

func (h *SessionsHandler) report(c echo.Context) error {
	s, err := h.lookup(c)
	if err != nil {
		return err
	}
	run, ok := s.ctrl.Snapshot()
	if !ok || run.Report == nil {
		return echo.NewHTTPError(http.StatusNotFound, "report not available")
	}
	if c.QueryParam("format") == "markdown" {
		return c.Blob(http.StatusOK, "text/markdown; charset=utf-8", []byte(core.RenderMarkdown(run.Report)))
	}
	return c.JSON(http.StatusOK, run.Report)
}
