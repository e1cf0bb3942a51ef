package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jward/binscope"
	"github.com/jward/binscope/internal/archive"
	"github.com/jward/binscope/internal/projection"
)

// DefaultMaxBodyBytes bounds a request body; uploads travel inline.
const DefaultMaxBodyBytes = 256 << 20

// Backend is the part of a binscope.Service the server exposes.
type Backend interface {
	ListDocuments() ([]string, error)
	CreateDocument(ctx context.Context, name string, data []byte) (*binscope.TranslateSummary, error)
	ListFunctions(name string) ([]binscope.FunctionInfo, error)
	XRefs(name string) (projection.Node, error)
	FunctionName(name string, index int) (string, error)
	FunctionIR(name string, index int) (projection.Node, error)
	ResolveAddress(name string, addr uint64) (projection.Node, error)
	FindCallsToSymbol(name, symbol string) ([]projection.Node, error)
	Translations(name string) ([]*archive.Translation, error)
}

// Server dispatches JSON-RPC requests to a Backend. It implements
// http.Handler.
type Server struct {
	svc      Backend
	log      *zap.Logger
	maxBody  int64
	handlers map[string]handler
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerLogger sets the request logger.
func WithServerLogger(l *zap.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMaxBodyBytes bounds the size of a request body.
func WithMaxBodyBytes(n int64) ServerOption {
	return func(s *Server) {
		if n > 0 {
			s.maxBody = n
		}
	}
}

// NewServer creates a Server for svc.
func NewServer(svc Backend, opts ...ServerOption) *Server {
	s := &Server{
		svc:     svc,
		log:     zap.NewNop(),
		maxBody: DefaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.handlers = s.methods()
	return s
}

// ServeHTTP implements http.Handler. Single requests and batches are
// accepted as POST bodies.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID := uuid.NewString()
	w.Header().Set("X-Request-Id", reqID)
	log := s.log.With(zap.String("request_id", reqID))

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBody))
	if err != nil {
		log.Warn("read request body", zap.Error(err))
		writeJSON(w, log, errorResponse(nil, CodeInvalidRequest, "request body too large or unreadable"))
		return
	}

	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '[' {
		s.serveBatch(r.Context(), w, log, body)
		return
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, log, errorResponse(nil, CodeParseError, "parse error"))
		return
	}
	resp := s.dispatch(r.Context(), log, &req)
	if resp == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, log, resp)
}

func (s *Server) serveBatch(ctx context.Context, w http.ResponseWriter, log *zap.Logger, body []byte) {
	var raws []json.RawMessage
	if err := json.Unmarshal(body, &raws); err != nil {
		writeJSON(w, log, errorResponse(nil, CodeParseError, "parse error"))
		return
	}
	if len(raws) == 0 {
		writeJSON(w, log, errorResponse(nil, CodeInvalidRequest, "empty batch"))
		return
	}

	var out []*Response
	for _, raw := range raws {
		var req Request
		if err := json.Unmarshal(raw, &req); err != nil {
			out = append(out, errorResponse(nil, CodeInvalidRequest, "invalid request"))
			continue
		}
		if resp := s.dispatch(ctx, log, &req); resp != nil {
			out = append(out, resp)
		}
	}
	if len(out) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, log, out)
}

// dispatch runs one request. It returns nil for notifications.
func (s *Server) dispatch(ctx context.Context, log *zap.Logger, req *Request) (resp *Response) {
	if req.JSONRPC != Version || req.Method == "" {
		return errorResponse(req.ID, CodeInvalidRequest, "invalid request")
	}
	log = log.With(zap.String("method", req.Method))

	h, ok := s.handlers[req.Method]
	if !ok {
		if req.notification() {
			return nil
		}
		return errorResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method))
	}

	start := time.Now()
	result, err := s.call(ctx, h, req.Params)
	if err != nil {
		log.Info("request failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		if req.notification() {
			return nil
		}
		return errorResponse(req.ID, CodeInternalError, err.Error())
	}
	log.Debug("request served", zap.Duration("elapsed", time.Since(start)))
	if req.notification() {
		return nil
	}

	b, err := json.Marshal(result)
	if err != nil {
		log.Error("encode result", zap.Error(err))
		return errorResponse(req.ID, CodeInternalError, fmt.Sprintf("encode result: %v", err))
	}
	return &Response{JSONRPC: Version, ID: req.ID, Result: b}
}

// call runs h, converting a panic into an error.
func (s *Server) call(ctx context.Context, h handler, raw json.RawMessage) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("handler panicked", zap.Any("panic", r))
			err = fmt.Errorf("internal error: %v", r)
		}
	}()
	p, err := parseParams(raw)
	if err != nil {
		return nil, err
	}
	return h(ctx, p)
}

func writeJSON(w http.ResponseWriter, log *zap.Logger, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn("write response", zap.Error(err))
	}
}

// Serve listens on addr and serves until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("rpc: listen %s: %w", addr, err)
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener serves on ln until ctx is cancelled. In-flight requests get
// up to five seconds to finish.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	hs := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- hs.Serve(ln) }()
	s.log.Info("rpc server listening", zap.String("addr", ln.Addr().String()))

	select {
	case err := <-errc:
		return fmt.Errorf("rpc: serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := hs.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("rpc: shutdown: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("rpc: serve: %w", err)
	}
	s.log.Info("rpc server stopped")
	return nil
}
