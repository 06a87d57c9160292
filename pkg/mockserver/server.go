package mockserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/getpactd/pactd/internal/generators"
	"github.com/getpactd/pactd/internal/matching"
	"github.com/getpactd/pactd/pkg/logging"
	"github.com/getpactd/pactd/pkg/pact"
)

// MaxRequestBodySize caps inbound request bodies. Oversized bodies are
// truncated to this size and the truncated body is matched.
const MaxRequestBodySize = 10 << 20 // 10MB

// Server is a running mock provider bound to one pact.
type Server struct {
	id   string
	pact *pact.Pact
	cfg  *matching.Config
	log  *slog.Logger

	httpServer *http.Server
	listener   net.Listener
	baseURL    string

	mu      sync.Mutex
	results []MatchResult
	matched map[*pact.Interaction]int

	wg sync.WaitGroup
}

// Option is a functional option for configuring a Server.
type Option func(*Server)

// WithLogger sets the operational logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// WithMatchingConfig overrides the matcher kernel configuration.
func WithMatchingConfig(cfg *matching.Config) Option {
	return func(s *Server) {
		if cfg != nil {
			s.cfg = cfg
		}
	}
}

// Start binds a listener on host:port (an OS-chosen port when port is
// zero) and begins serving the pact.
func Start(p *pact.Pact, host string, port int, opts ...Option) (*Server, error) {
	if p == nil {
		return nil, fmt.Errorf("mock server requires a pact")
	}

	s := &Server{
		id:      uuid.NewString(),
		pact:    p,
		cfg:     matching.DefaultConfig(),
		log:     logging.Nop(),
		matched: map[*pact.Interaction]int{},
	}
	for _, opt := range opts {
		opt(s)
	}

	listener, err := net.Listen("tcp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return nil, fmt.Errorf("failed to bind mock server: %w", err)
	}
	s.listener = listener
	s.baseURL = fmt.Sprintf("http://%s", listener.Addr().String())

	s.httpServer = &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.log.Error("mock server stopped unexpectedly", "error", err)
		}
	}()

	s.log.Info("mock server started",
		"id", s.id,
		"url", s.baseURL,
		"consumer", p.Consumer.Name,
		"provider", p.Provider.Name,
		"interactions", len(p.Interactions))

	return s, nil
}

// ID returns the server's handle identifier.
func (s *Server) ID() string { return s.id }

// URL returns the base URL of the running listener.
func (s *Server) URL() string { return s.baseURL }

// Port returns the bound port.
func (s *Server) Port() int {
	addr, ok := s.listener.Addr().(*net.TCPAddr)
	if !ok {
		return 0
	}
	return addr.Port
}

// ServeHTTP handles one inbound request: select the best-matching
// interaction, respond with its generated response, and record the
// outcome.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body []byte
	if r.Body != nil {
		body, _ = io.ReadAll(io.LimitReader(r.Body, MaxRequestBodySize))
	}

	actual := matching.FromHTTPRequest(r, body)
	best := selectInteraction(s.pact, actual, s.cfg)

	if best == nil {
		s.record(MatchResult{
			Kind:   ResultRequestNotFound,
			Method: r.Method,
			Path:   r.URL.Path,
		})
		s.writeErrorResponse(w, r, nil)
		return
	}

	if best.score == perfectScore && len(best.mismatches) == 0 {
		s.log.Debug("request matched", "method", r.Method, "path", r.URL.Path, "interaction", best.interaction.Description)
		s.respond(w, best.interaction)
		s.record(MatchResult{
			Kind:        ResultMatched,
			Method:      r.Method,
			Path:        r.URL.Path,
			Interaction: best.interaction,
		})
		s.mu.Lock()
		s.matched[best.interaction]++
		s.mu.Unlock()
		return
	}

	s.log.Debug("request mismatched",
		"method", r.Method,
		"path", r.URL.Path,
		"closest", best.interaction.Description,
		"mismatches", len(best.mismatches))
	s.record(MatchResult{
		Kind:        ResultRequestMismatch,
		Method:      r.Method,
		Path:        r.URL.Path,
		Interaction: best.interaction,
		Mismatches:  best.mismatches,
	})
	s.writeErrorResponse(w, r, best)
}

// respond renders the interaction's response with generators applied
// in consumer mode.
func (s *Server) respond(w http.ResponseWriter, interaction *pact.Interaction) {
	response := interaction.Response

	status := response.Status
	headers := map[string][]string{}
	for name, values := range response.Headers {
		headers[name] = append([]string(nil), values...)
	}
	body := append([]byte(nil), response.Body.Content...)

	part := &generators.PartData{
		Status:      &status,
		Headers:     headers,
		Body:        body,
		ContentType: response.ContentType(),
	}
	ctx := &generators.Context{
		Mode:          generators.ModeConsumer,
		MockServerURL: s.baseURL,
	}
	for _, warning := range generators.Apply(response.Generators, part, ctx) {
		s.log.Warn("response generator failed", "detail", warning.String())
	}

	for name, values := range part.Headers {
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}
	if w.Header().Get("Content-Type") == "" && response.Body.IsPresent() {
		w.Header().Set("Content-Type", response.ContentType())
	}
	w.WriteHeader(status)
	if len(part.Body) > 0 {
		_, _ = w.Write(part.Body)
	}
}

// writeErrorResponse reports an unmatched request with the best-scoring
// candidate's mismatches for diagnosis.
func (s *Server) writeErrorResponse(w http.ResponseWriter, r *http.Request, best *candidate) {
	payload := map[string]any{
		"error":  "no interaction matched the request",
		"method": r.Method,
		"path":   r.URL.Path,
	}
	if best != nil {
		payload["closest"] = best.interaction.Description
		payload["mismatches"] = best.mismatches
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) record(result MatchResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, result)
}

// Matched reports whether every interaction in the pact matched at
// least once and no request mismatched.
func (s *Server) Matched() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, result := range s.results {
		if result.Kind != ResultMatched {
			return false
		}
	}
	for _, interaction := range s.pact.Interactions {
		if !interaction.IsHTTP() {
			continue
		}
		if s.matched[interaction] == 0 {
			return false
		}
	}
	return true
}

// Results returns the recorded events, appending a missing-request
// entry for every interaction that never matched.
func (s *Server) Results() []MatchResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := append([]MatchResult(nil), s.results...)
	for _, interaction := range s.pact.Interactions {
		if !interaction.IsHTTP() {
			continue
		}
		if s.matched[interaction] == 0 {
			out = append(out, MatchResult{
				Kind:        ResultMissingInteraction,
				Interaction: interaction,
			})
		}
	}
	return out
}

// WritePact serialises the server's pact into dir using the standard
// merge rules.
func (s *Server) WritePact(dir string) (string, error) {
	return pact.WriteFile(s.pact, dir)
}

// Shutdown stops accepting requests, waits for in-flight handlers, and
// releases the socket.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.wg.Wait()
	s.log.Info("mock server stopped", "id", s.id)
	return err
}
