package bridge

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"calqbridge/internal/logger"
	"calqbridge/internal/services/ulid"
)

// Server exposes a Dispatcher over HTTP.
type Server struct {
	echo       *echo.Echo
	dispatcher *Dispatcher
	logger     *logger.Logger
}

// NewServer creates the bridge server and registers its routes.
func NewServer(dispatcher *Dispatcher, log *logger.Logger) *Server {
	if log == nil {
		log = logger.New("calq-bridge")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("1M"))

	s := &Server{
		echo:       e,
		dispatcher: dispatcher,
		logger:     log,
	}

	e.GET(PathHealth, s.handleHealth)
	e.POST(PathInvoke, s.handleInvoke)

	return s
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens on addr until Shutdown.
func (s *Server) Start(addr string) error {
	s.logger.Infof("bridge listening on %s", addr)
	err := s.echo.Start(addr)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status": "healthy",
	})
}

// handleInvoke answers malformed envelopes with 400; everything that reaches the
// dispatcher gets 200 with the outcome in the body.
func (s *Server) handleInvoke(c echo.Context) error {
	var req Request
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.ID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "id is required"})
	}
	if err := req.Validate(); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	if issued, err := ulid.IssuedAt(req.ID); err == nil {
		s.logger.Debug("bridge request", map[string]interface{}{
			"id":        req.ID,
			"operation": req.Operation,
			"age_ms":    time.Since(issued).Milliseconds(),
		})
	}

	resp := s.dispatcher.Dispatch(c.Request().Context(), req)
	return c.JSON(http.StatusOK, resp)
}
