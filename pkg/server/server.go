package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"kmlstore/pkg/apperr"
	"kmlstore/pkg/config"
	"kmlstore/pkg/kml"
	"kmlstore/pkg/log"
	"kmlstore/pkg/metadata"
	"kmlstore/pkg/objstore"
	"kmlstore/pkg/origin"
)

const shutdownTimeout = 10

// Server wires the validators and the two store gateways into the HTTP
// surface. All dependencies are injected, nothing is looked up globally.
type Server struct {
	echo       *echo.Echo
	cfg        *config.Config
	version    string
	validator  *kml.Validator
	authorizer *origin.Authorizer
	objects    objstore.Store
	metadata   metadata.Store
}

func NewServer(cfg *config.Config, version string, authorizer *origin.Authorizer,
	objects objstore.Store, metadataStore metadata.Store) *Server {
	return &Server{
		echo:       echo.New(),
		cfg:        cfg,
		version:    strings.TrimSpace(version),
		validator:  kml.NewValidator(cfg.KML.MaxSize),
		authorizer: authorizer,
		objects:    objects,
		metadata:   metadataStore,
	}
}

func (s *Server) Start(addr string) error {
	s.setupRoutes()

	go func() {
		log.Info().
			Str("addr", addr).
			Str("version", s.version).
			Str("metadata_backend", s.cfg.Metadata.Backend).
			Msg("Starting kmlstore server")

		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server startup failed")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	return s.Shutdown()
}

func (s *Server) Shutdown() error {
	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout*time.Second)
	defer cancel()

	if err := s.echo.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
		return err
	}

	log.Info().Msg("Server gracefully stopped")
	return nil
}

func (s *Server) setupRoutes() {
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.HTTPErrorHandler = s.errorHandler
	s.echo.Server.ReadTimeout = s.cfg.Server.ReadTimeout
	s.echo.Server.WriteTimeout = s.cfg.Server.WriteTimeout

	s.echo.Use(middleware.Recover())
	s.echo.Use(requestLogger())
	s.echo.Use(metricsMiddleware())
	s.echo.Use(s.responseHeaders())
	s.echo.Use(s.checkOrigin())

	s.echo.GET("/checker", s.checker)
	s.echo.GET("/metrics", echo.WrapHandler(metricsHandler()))

	prefix := strings.TrimRight(s.cfg.Server.RoutePrefix, "/")
	s.echo.POST(prefix+"/admin", s.createKML)
	s.echo.GET(prefix+"/admin", s.getKMLByAdminID)
	s.echo.GET(prefix+"/admin/:id", s.getKML)
	s.echo.PUT(prefix+"/admin/:id", s.updateKML)
	s.echo.DELETE(prefix+"/admin/:id", s.deleteKML)
}

// errorHandler is the single place where taxonomy kinds become status
// codes and the uniform error envelope.
func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var (
		status  int
		message string
	)

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		// Routing-level failures (no route, wrong method) raised by echo.
		status = httpErr.Code
		if msg, ok := httpErr.Message.(string); ok {
			message = msg
		} else {
			message = http.StatusText(status)
		}
	} else {
		kind := apperr.KindOf(err)
		status = apperr.HTTPStatus(kind)
		message = apperr.MessageOf(err)
	}

	if status >= http.StatusInternalServerError {
		log.Error().Err(err).
			Str("method", c.Request().Method).
			Str("path", c.Request().URL.Path).
			Int("status", status).
			Msg("Request failed")
	} else {
		log.Warn().
			Str("method", c.Request().Method).
			Str("path", c.Request().URL.Path).
			Int("status", status).
			Str("message", message).
			Msg("Request rejected")
	}

	if err := c.JSON(status, errorEnvelope(status, message)); err != nil {
		log.Error().Err(err).Msg("Failed to write error response")
	}
}

// checkOrigin rejects requests from non allowed origins. The /checker and
// /metrics endpoints intentionally bypass the check, they are internal.
func (s *Server) checkOrigin() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if isInternalRoute(c.Path()) {
				return next(c)
			}
			if err := s.authorizer.Authorize(c.Request().Header); err != nil {
				return err
			}
			return next(c)
		}
	}
}

// responseHeaders adds the CORS mirror and cache policy headers. The
// cache policy depends on the response status, so the headers are set
// right before the first write.
func (s *Server) responseHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if isInternalRoute(c.Path()) {
				return next(c)
			}

			resp := c.Response()
			resp.Before(func() {
				h := resp.Header()

				h.Set("Access-Control-Allow-Origin", hostURL(c))
				if o := c.Request().Header.Get("Origin"); o != "" && s.authorizer.DomainAllowed(o) {
					h.Set("Access-Control-Allow-Origin", o)
				}
				h.Set("Vary", "Origin")
				h.Set("Access-Control-Allow-Methods", strings.Join(s.registeredMethods(c.Path()), ", "))
				h.Set("Access-Control-Allow-Headers", "*")

				if c.Request().Method == http.MethodGet {
					if resp.Status >= http.StatusBadRequest {
						h.Set("Cache-Control", s.cfg.Server.CacheControl4xx)
					} else {
						h.Set("Cache-Control", s.cfg.Server.CacheControl)
						if strings.Contains(s.cfg.Server.CacheControl, "no-cache") {
							h.Set("Expire", "0")
						}
					}
				}
			})
			return next(c)
		}
	}
}

// registeredMethods returns the HTTP methods registered for a route path,
// sorted for a stable header value.
func (s *Server) registeredMethods(path string) []string {
	var methods []string
	for _, route := range s.echo.Routes() {
		if route.Path == path && !strings.HasPrefix(route.Method, "echo_route") {
			methods = append(methods, route.Method)
		}
	}
	if len(methods) == 0 {
		methods = []string{http.MethodGet, http.MethodHead, http.MethodOptions,
			http.MethodPost, http.MethodPut, http.MethodDelete}
	}
	sort.Strings(methods)
	return methods
}

func isInternalRoute(path string) bool {
	return path == "/checker" || path == "/metrics"
}

// hostURL reconstructs the external base URL of the request.
func hostURL(c echo.Context) string {
	return c.Scheme() + "://" + c.Request().Host
}

func requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			log.Debug().
				Str("method", c.Request().Method).
				Str("path", c.Request().URL.Path).
				Msg("Request received")

			if err := next(c); err != nil {
				c.Error(err)
			}

			log.Info().
				Str("method", c.Request().Method).
				Str("path", c.Request().URL.Path).
				Int("status", c.Response().Status).
				Dur("duration", time.Since(start)).
				Msg("Request handled")
			return nil
		}
	}
}
