package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var ErrNoEngine = errors.New("quest engine is required")
var ErrNoBridge = errors.New("player bridge is required")

type Server struct {
	router *gin.Engine

	httpSrv *http.Server
}

type ServerOptions struct {
	Engine  questEngine
	Bridge  playerBridge
	Artwork artworkCache
	Logger  *zap.Logger
	Addr    string
}

func NewServer(opts *ServerOptions) (*Server, error) {
	if opts.Engine == nil {
		return nil, ErrNoEngine
	}
	if opts.Bridge == nil {
		return nil, ErrNoBridge
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(
		RecoveryMiddleware(opts.Logger),
		RequestIDMiddleware(),
		LoggingMiddleware(opts.Logger),
	)

	h := NewHandler(opts.Engine, opts.Bridge, opts.Artwork, opts.Logger)
	setupRouter(router, h)

	return &Server{
		router: router,
		httpSrv: &http.Server{
			Addr:    opts.Addr,
			Handler: router,
		}}, nil
}

func (s *Server) Run() error {
	return s.httpSrv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) Router() http.Handler {
	return s.router
}

func setupRouter(router *gin.Engine, h *handler) {
	questGroup := router.Group("/quest")
	questGroup.POST("", h.submitQuest)
	questGroup.GET("", h.getQuest)
	questGroup.POST("/resume", h.resumeQuest)
	questGroup.POST("/unlock", h.requestUnlock)
	questGroup.POST("/clicks", h.recordClick)

	playerGroup := router.Group("/player")
	playerGroup.POST("/play", h.playTrack)
	playerGroup.POST("/toggle", h.togglePlayPause)
	playerGroup.POST("/next", h.nextTrack)
	playerGroup.POST("/previous", h.previousTrack)
	playerGroup.POST("/events", h.reportPlayerEvent)
	playerGroup.GET("/commands", h.drainPlayerCommands)

	router.GET("/artwork/:id", h.getArtwork)
}
