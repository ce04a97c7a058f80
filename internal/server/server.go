// Package server exposes the character's chat API over HTTP.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/normanking/posteravatar/internal/config"
	"github.com/normanking/posteravatar/internal/llm"
	"github.com/normanking/posteravatar/internal/tts"
)

// FallbackMessage accompanies a 500 so clients have something in character to show.
const FallbackMessage = "Aw jeez, something went wrong with the interdimensional communication! *burp*"

// Server serves POST /api/chat plus health and metrics endpoints.
type Server struct {
	cfg       config.ServerConfig
	completer llm.Completer
	speech    tts.Synthesizer
	logger    zerolog.Logger
	metrics   *Metrics
	engine    *gin.Engine
}

// New builds the router. speech may be nil, in which case replies carry no audio.
func New(cfg config.ServerConfig, completer llm.Completer, speech tts.Synthesizer, logger zerolog.Logger) *Server {
	s := &Server{
		cfg:       cfg,
		completer: completer,
		speech:    speech,
		logger:    logger.With().Str("component", "server").Logger(),
		metrics:   NewMetrics(),
	}
	s.engine = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Recovery(), RequestID(), CORS(s.cfg.AllowOrigin), RequestLogger(s.logger, s.metrics))

	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "Method not allowed"})
	})
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	})

	api := r.Group("/api")
	api.OPTIONS("/chat", func(c *gin.Context) { c.Status(http.StatusOK) })
	api.POST("/chat", RateLimitByIP(s.cfg.RateLimit, s.cfg.RateBurst, s.metrics), s.handleChat)

	r.GET("/healthz", s.handleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{})))
	return r
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Metrics returns the server's collectors.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Run serves on cfg.Addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.engine,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.cfg.Addr).Msg("chat API listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		s.logger.Info().Msg("chat API stopped")
		return nil
	}
}

type chatResponse struct {
	Message  string  `json:"message"`
	AudioURL *string `json:"audioUrl"`
}

func (s *Server) handleChat(c *gin.Context) {
	var body struct {
		Messages json.RawMessage `json:"messages"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || !isJSONArray(body.Messages) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Messages array is required"})
		return
	}
	var messages []llm.Message
	if err := json.Unmarshal(body.Messages, &messages); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Messages array is required"})
		return
	}

	ctx := c.Request.Context()
	start := time.Now()
	reply, err := s.completer.Complete(ctx, messages)
	s.metrics.CompletionLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		s.logger.Error().Err(err).Str("request_id", c.GetString("request_id")).Msg("chat completion failed")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Internal server error",
			"message": FallbackMessage,
		})
		return
	}

	c.JSON(http.StatusOK, chatResponse{
		Message:  reply,
		AudioURL: s.narrate(ctx, reply),
	})
}

// narrate synthesizes reply as a data URI. Any failure yields nil so the reply still goes out.
func (s *Server) narrate(ctx context.Context, reply string) *string {
	if s.speech == nil {
		return nil
	}
	start := time.Now()
	resp, err := s.speech.Synthesize(ctx, &tts.SynthesizeRequest{Text: reply})
	s.metrics.SpeechLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		s.metrics.SpeechFailures.Inc()
		s.logger.Warn().Err(err).Msg("audio generation failed, replying without audio")
		return nil
	}
	uri := resp.DataURI()
	return &uri
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"speech": s.speech != nil,
	})
}

func isJSONArray(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '['
}
