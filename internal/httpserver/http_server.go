package httpserver

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"slack-relay/handler"
	"slack-relay/internal/config"
	"slack-relay/internal/metrics"
	"slack-relay/internal/usecase"
)

// HttpServer wraps the gin engine with graceful shutdown helpers.
type HttpServer struct {
	cfg    *config.Config
	engine *gin.Engine
	log    zerolog.Logger
}

// New constructs the HTTP server. install may be nil, in which case the OAuth
// redirect is not registered.
func New(cfg *config.Config, log zerolog.Logger, relay handler.EventHandler, install handler.Installer) *HttpServer {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestMetrics())
	engine.Use(requestLogger(log))

	registerPublicRoutes(engine, cfg)

	events := eventsHandler(relay, log)
	engine.POST("/slack/events", events)
	engine.POST("/events", events)

	if install != nil {
		oauth := oauthHandler(install)
		engine.GET("/slack/oauth_redirect", oauth)
		engine.GET("/oauth_redirect", oauth)
	}

	return &HttpServer{cfg: cfg, engine: engine, log: log}
}

// Handler exposes the engine, mainly for tests.
func (s *HttpServer) Handler() http.Handler {
	return s.engine
}

// Run starts the HTTP listener and handles graceful shutdown via context cancellation.
func (s *HttpServer) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.cfg.Addr(),
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.cfg.Addr()).Msg("HTTP server listening")
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("HTTP server error")
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		s.log.Info().Msg("Context cancelled, shutting down HTTP server")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func registerPublicRoutes(engine *gin.Engine, cfg *config.Config) {
	engine.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"service": cfg.ServiceName,
			"status":  "ok",
		})
	})

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

func eventsHandler(relay handler.EventHandler, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Signatures cover the exact bytes, so the body is read raw.
		body, err := c.GetRawData()
		if err != nil {
			c.String(http.StatusBadRequest, "Invalid body")
			return
		}
		ctx := log.WithContext(c.Request.Context())
		out, err := relay.HandleEvent(ctx, usecase.EventInput{
			Timestamp: c.GetHeader("X-Slack-Request-Timestamp"),
			Signature: c.GetHeader("X-Slack-Signature"),
			Body:      body,
		})
		write(c, handler.ForEvent(log, out, err))
	}
}

func oauthHandler(install handler.Installer) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, err := install.Install(c.Request.Context(), c.Query("code"))
		write(c, handler.ForInstall(err))
	}
}

func write(c *gin.Context, resp handler.Response) {
	if resp.Body == "" && resp.ContentType == "" {
		c.Status(resp.Status)
		return
	}
	c.Data(resp.Status, resp.ContentType, []byte(resp.Body))
}

func requestMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method
		metrics.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}

func requestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if c.FullPath() == "/healthz" || c.FullPath() == "/metrics" {
			return
		}
		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("http request")
	}
}
