package eventbridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// ErrServerDisabled is returned by Start when the bridge is switched off.
var ErrServerDisabled = errors.New("eventbridge: server disabled")

// Server is the local HTTP intake for asset events. POST /events takes one
// event or a batch; GET /health reports intake counters.
type Server struct {
	settings  Settings
	processor EventProcessor
	logger    Logger
	clock     func() time.Time

	accepted  atomic.Int64
	rejected  atomic.Int64
	lastEvent atomic.Int64

	mu     sync.Mutex
	server *http.Server
	addr   net.Addr
}

// Option customizes server construction.
type Option func(*Server)

// WithProcessor sets where accepted events go. Without one they are
// counted and discarded.
func WithProcessor(p EventProcessor) Option {
	return func(s *Server) {
		if p != nil {
			s.processor = p
		}
	}
}

// WithLogger overrides the default no-op logger.
func WithLogger(l Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock sets the server_time stamp source.
func WithClock(clock func() time.Time) Option {
	return func(s *Server) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewServer prepares a bridge server using the provided settings.
func NewServer(settings Settings, opts ...Option) *Server {
	s := &Server{
		settings:  settings,
		processor: EventProcessorFunc(nil),
		logger:    discard{},
		clock:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Handler returns the HTTP routes, for mounting without Start.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/events", s.handleEvents)
	return mux
}

// Start listens on the configured address and serves in the background
// until Shutdown. Requests inherit ctx.
func (s *Server) Start(ctx context.Context) error {
	if !s.settings.Enabled {
		return ErrServerDisabled
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server != nil {
		return fmt.Errorf("eventbridge: server already started")
	}
	listener, err := net.Listen("tcp", s.settings.Address())
	if err != nil {
		return fmt.Errorf("eventbridge: listen %s: %w", s.settings.Address(), err)
	}
	server := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.settings.ReadTimeout,
		WriteTimeout: s.settings.WriteTimeout,
		IdleTimeout:  s.settings.IdleTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}
	s.server, s.addr = server, listener.Addr()
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Printf("eventbridge: serve: %v", err)
		}
	}()
	s.logger.Printf("eventbridge: accepting asset events on %s", s.addr)
	return nil
}

// Shutdown stops the listener and waits for in-flight requests until ctx
// ends. It is a no-op on a server that is not running.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	server := s.server
	s.server, s.addr = nil, nil
	s.mu.Unlock()
	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}

// BaseURL returns the URL of the running server, or the configured one
// before Start.
func (s *Server) BaseURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.addr == nil {
		return s.settings.URL()
	}
	return "http://" + s.addr.String()
}

// Accepted returns how many events have been handed to the processor.
func (s *Server) Accepted() int64 {
	return s.accepted.Load()
}

// Rejected returns how many requests were refused as malformed or invalid.
func (s *Server) Rejected() int64 {
	return s.rejected.Load()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", http.MethodGet+", "+http.MethodHead)
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.mu.Lock()
	listening := s.server != nil
	s.mu.Unlock()
	resp := healthResponse{
		Version:   ProtocolVersion,
		Listening: listening,
		Accepted:  s.accepted.Load(),
		Rejected:  s.rejected.Load(),
	}
	if last := s.lastEvent.Load(); last != 0 {
		at := time.Unix(0, last).UTC()
		resp.LastEvent = &at
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleEvents accepts one event object or a JSON array of them. A batch is
// validated as a whole before any event reaches the processor.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.settings.MaxBodyBytes))
	if err != nil {
		s.rejected.Add(1)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload exceeds limit")
			return
		}
		writeError(w, http.StatusBadRequest, "unable to read body")
		return
	}
	events, err := decodeEvents(body)
	if err != nil {
		s.rejected.Add(1)
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	now := s.clock().UTC()
	ids := make([]string, 0, len(events))
	for i := range events {
		events[i].Normalize()
		if err := events[i].Validate(); err != nil {
			s.rejected.Add(1)
			writeError(w, http.StatusBadRequest, fmt.Sprintf("event %d: %v", i, err))
			return
		}
		events[i].StampServerTime(now)
		ids = append(ids, events[i].EventID)
	}
	for i, evt := range events {
		if err := s.processor.HandleEvent(evt); err != nil {
			s.logger.Printf("eventbridge: handle %s %v: %v", evt.Type, evt.AssetIDs, err)
			writeJSON(w, http.StatusInternalServerError, eventResponse{Accepted: i, EventIDs: ids[:i], ServerTime: now})
			return
		}
		s.accepted.Add(1)
	}
	s.lastEvent.Store(now.UnixNano())
	writeJSON(w, http.StatusAccepted, eventResponse{Accepted: len(events), EventIDs: ids, ServerTime: now})
}

func decodeEvents(body []byte) ([]Event, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, errors.New("empty body")
	}
	if body[0] != '[' {
		var evt Event
		if err := json.Unmarshal(body, &evt); err != nil {
			return nil, err
		}
		return []Event{evt}, nil
	}
	var events []Event
	if err := json.Unmarshal(body, &events); err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, errors.New("empty batch")
	}
	return events, nil
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type discard struct{}

func (discard) Printf(string, ...any) {}
