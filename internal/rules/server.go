package rules

import (
	"context"
	"encoding/json"
	"errors"
	"net"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/park285/chess-session-server/internal/obslog"
)

// Server exposes an Engine over HTTP for Remote clients.
type Server struct {
	engine Engine
	srv    *fasthttp.Server
}

func NewServer(engine Engine) *Server {
	s := &Server{engine: engine}
	s.srv = &fasthttp.Server{
		Handler:            s.handle,
		Name:               "rulesd",
		MaxRequestBodySize: 1 << 20,
	}
	return s
}

func (s *Server) Serve(ln net.Listener) error { return s.srv.Serve(ln) }

func (s *Server) ListenAndServe(addr string) error { return s.srv.ListenAndServe(addr) }

func (s *Server) Shutdown(ctx context.Context) error { return s.srv.ShutdownWithContext(ctx) }

func (s *Server) handle(ctx *fasthttp.RequestCtx) {
	path := string(ctx.Path())
	if path == "/healthz" {
		ctx.SetStatusCode(fasthttp.StatusOK)
		ctx.SetBodyString("ok")
		return
	}
	if !ctx.IsPost() {
		writeJSON(ctx, fasthttp.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}
	switch path {
	case "/validate":
		s.handleValidate(ctx)
	case "/terminal":
		s.handleTerminal(ctx)
	default:
		writeJSON(ctx, fasthttp.StatusNotFound, errorResponse{Error: "not found"})
	}
}

func (s *Server) handleValidate(ctx *fasthttp.RequestCtx) {
	var req validateRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		writeJSON(ctx, fasthttp.StatusBadRequest, errorResponse{Error: "invalid body"})
		return
	}
	mv, err := s.engine.Validate(ctx, Position{Moves: req.Moves}, req.Notation)
	if err != nil {
		if errors.Is(err, ErrIllegal) {
			body := errorResponse{Error: err.Error()}
			if errors.Is(err, ErrGameOver) {
				body.Code = codeGameOver
			}
			writeJSON(ctx, fasthttp.StatusUnprocessableEntity, body)
			return
		}
		obslog.L().Warn("rulesd_validate_failed", zap.Int("plies", len(req.Moves)), zap.Error(err))
		writeJSON(ctx, fasthttp.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, mv)
}

func (s *Server) handleTerminal(ctx *fasthttp.RequestCtx) {
	var req terminalRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		writeJSON(ctx, fasthttp.StatusBadRequest, errorResponse{Error: "invalid body"})
		return
	}
	status, err := s.engine.TerminalStatus(ctx, Position{Moves: req.Moves})
	if err != nil {
		obslog.L().Warn("rulesd_terminal_failed", zap.Int("plies", len(req.Moves)), zap.Error(err))
		writeJSON(ctx, fasthttp.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, terminalResponse{Status: status})
}

func writeJSON(ctx *fasthttp.RequestCtx, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		ctx.Error("encode failed", fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	ctx.SetBody(body)
}
