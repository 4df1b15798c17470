package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ludio/questplayer/internal/core"
	"github.com/ludio/questplayer/internal/playback"
	"github.com/ludio/questplayer/internal/quest"
	"go.uber.org/zap"
)

type questEngine interface {
	SubmitQuest(ctx context.Context, playlistID string) error
	ResumeQuest(ctx context.Context) error
	RequestUnlock(ctx context.Context) error
	GrantManualPoint(x, y int) (*quest.Ack, bool)
	Play(index int) error
	TogglePlayPause()
	Next()
	Previous()
	View() *quest.View
}

type playerBridge interface {
	ReportStatus(ev playback.Event)
	DrainCommands() []playback.Command
}

// artworkCache is nil-able: without a prefetcher every artwork lookup
// is a 404 and the player falls back to the remote thumbnail.
type artworkCache interface {
	Path(mediaID string) (string, bool)
}

type handler struct {
	engine  questEngine
	bridge  playerBridge
	artwork artworkCache
	logger  *zap.Logger
}

// handlerTimeout bounds a submit or resume, which fetches one upstream
// page synchronously.
const handlerTimeout = 30 * time.Second

func NewHandler(e questEngine, b playerBridge, a artworkCache, logger *zap.Logger) *handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &handler{engine: e, bridge: b, artwork: a, logger: logger}
}

func (h *handler) submitQuest(c *gin.Context) {
	req := SubmitQuestRequest{}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequestResponse(c, err)
		return
	}
	SetPlaylistID(c, req.PlaylistID)

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	if err := h.engine.SubmitQuest(ctx, req.PlaylistID); err != nil {
		h.errorResponse(c, err)
		return
	}
	c.JSON(http.StatusCreated, NewQuestResponse(h.engine.View()))
}

func (h *handler) resumeQuest(c *gin.Context) {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	if err := h.engine.ResumeQuest(ctx); err != nil {
		h.errorResponse(c, err)
		return
	}
	v := h.engine.View()
	SetPlaylistID(c, v.PlaylistID)
	c.JSON(http.StatusOK, NewQuestResponse(v))
}

// requestUnlock never fails the request for a rejected gate: the
// response body carries the unchanged quest state instead.
func (h *handler) requestUnlock(c *gin.Context) {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	if err := h.engine.RequestUnlock(ctx); err != nil {
		h.errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, NewQuestResponse(h.engine.View()))
}

func (h *handler) recordClick(c *gin.Context) {
	req := ClickRequest{}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequestResponse(c, err)
		return
	}

	ack, ok := h.engine.GrantManualPoint(req.X, req.Y)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"granted": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"granted": true,
		"ack":     NewAckResponse(ack),
	})
}

func (h *handler) getQuest(c *gin.Context) {
	v := h.engine.View()
	SetPlaylistID(c, v.PlaylistID)
	c.JSON(http.StatusOK, NewQuestResponse(v))
}

func (h *handler) playTrack(c *gin.Context) {
	req := PlayRequest{}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequestResponse(c, err)
		return
	}
	if err := h.engine.Play(req.Index); err != nil {
		h.errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, NewQuestResponse(h.engine.View()))
}

func (h *handler) togglePlayPause(c *gin.Context) {
	h.engine.TogglePlayPause()
	c.JSON(http.StatusOK, NewQuestResponse(h.engine.View()))
}

func (h *handler) nextTrack(c *gin.Context) {
	h.engine.Next()
	c.JSON(http.StatusOK, NewQuestResponse(h.engine.View()))
}

func (h *handler) previousTrack(c *gin.Context) {
	h.engine.Previous()
	c.JSON(http.StatusOK, NewQuestResponse(h.engine.View()))
}

// reportPlayerEvent is the widget's upstream half: it posts transport
// transitions here, the engine reacts through its subscription.
func (h *handler) reportPlayerEvent(c *gin.Context) {
	req := PlayerEventRequest{}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequestResponse(c, err)
		return
	}
	status, ok := core.ParsePlaybackStatus(req.Status)
	if !ok {
		h.errorResponse(c, core.NewValidationError("unknown playback status", nil, "api.handler.reportPlayerEvent"))
		return
	}

	h.bridge.ReportStatus(playback.Event{
		Status:   status,
		Position: req.Position,
		Duration: req.Duration,
	})
	c.JSON(http.StatusOK, gin.H{"accepted": true})
}

// drainPlayerCommands is the widget's downstream half: it polls queued
// load/play/pause commands, oldest first.
func (h *handler) drainPlayerCommands(c *gin.Context) {
	cmds := h.bridge.DrainCommands()
	if cmds == nil {
		cmds = []playback.Command{}
	}
	c.JSON(http.StatusOK, CommandsResponse{Commands: cmds})
}

// getArtwork serves the cached thumbnail, or redirects to the
// placeholder image when nothing is cached for the id.
func (h *handler) getArtwork(c *gin.Context) {
	id := c.Param("id")
	if h.artwork == nil {
		c.Redirect(http.StatusFound, core.PlaceholderThumbnailURL)
		return
	}
	path, ok := h.artwork.Path(id)
	if !ok {
		c.Redirect(http.StatusFound, core.PlaceholderThumbnailURL)
		return
	}
	c.File(path)
}

func (h *handler) badRequestResponse(c *gin.Context, err error) {
	if c != nil && err != nil {
		c.Error(err) //nolint:errcheck
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"error":   "bad request",
		"details": err.Error(),
	})
}

func (h *handler) errorResponse(c *gin.Context, err error) {
	if c != nil && err != nil {
		c.Error(err) //nolint:errcheck
	}
	if err == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error": "internal server error",
		})
		return
	}

	if appErr, ok := core.AsAppError(err); ok {
		s := appErr.HTTPStatus()
		p := gin.H{
			"error": appErr.PublicMessage(),
			"code":  appErr.Code,
		}
		if appErr.SafeToShow {
			switch {
			case appErr.Err != nil:
				p["details"] = appErr.Err.Error()
			case appErr.Message != "":
				p["details"] = appErr.Message
			}
		}
		h.logger.Warn("handler error",
			zap.String("reqid", GetRequestID(c)),
			zap.String("playlist_id", GetPlaylistID(c)),
			zap.String("error", err.Error()),
		)
		c.AbortWithStatusJSON(s, p)
		return
	}

	h.logger.Error("handler unknown error",
		zap.String("reqid", GetRequestID(c)),
		zap.String("playlist_id", GetPlaylistID(c)),
		zap.String("error", err.Error()),
	)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
		"error": "internal server error",
	})
}
