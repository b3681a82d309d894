package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/gorilla/websocket"

	"autovpn-backend/internal/model"
	"autovpn-backend/internal/pkg/logger"
	"autovpn-backend/internal/pkg/logstream"
	"autovpn-backend/internal/service"
)

type InstallHandler struct {
	installService *service.InstallService
	upgrader       websocket.Upgrader
	logger         *logger.Logger
}

func NewInstallHandler(installService *service.InstallService, allowedOrigins []string, logger *logger.Logger) *InstallHandler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return &InstallHandler{
		installService: installService,
		logger:         logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowed[origin]
			},
		},
	}
}

// WriteConfig handles POST /install/config.
func (h *InstallHandler) WriteConfig(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		bindError(c, err)
		return
	}
	var req model.InstallConfig
	if err := binding.JSON.BindBody(raw, &req); err != nil {
		bindError(c, err)
		return
	}
	if err := h.installService.WriteConfig(c.Request.Context(), &req, raw); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.OKResponse{OK: true})
}

// CreateRun handles POST /install/run.
func (h *InstallHandler) CreateRun(c *gin.Context) {
	var req model.RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	id, err := h.installService.CreateRun(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.RunResponse{RunID: id})
}

// lastEventID reads the resume point an EventSource sends on reconnect.
func lastEventID(c *gin.Context) int {
	n, err := strconv.Atoi(strings.TrimSpace(c.GetHeader("Last-Event-ID")))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// StreamLogs serves the run log as server-sent events and starts the run
// on the first subscriber. Each record carries its position as the event id;
// 204 tells a reconnecting browser that a finished run has nothing left.
func (h *InstallHandler) StreamLogs(c *gin.Context) {
	id := c.Param("run_id")
	started := false
	err := h.installService.StreamRun(c.Request.Context(), id, lastEventID(c), func(ev logstream.Event) error {
		if !started {
			c.Writer.Header().Set("Content-Type", "text/event-stream")
			c.Writer.Header().Set("Cache-Control", "no-cache")
			c.Writer.Header().Set("Connection", "keep-alive")
			c.Writer.Header().Set("X-Accel-Buffering", "no")
			c.Status(http.StatusOK)
			started = true
		}
		c.Render(-1, sse.Event{Id: strconv.Itoa(ev.ID), Event: ev.Event, Data: ev.Data})
		c.Writer.Flush()
		return c.Request.Context().Err()
	})
	if err == nil || c.Request.Context().Err() != nil {
		return
	}
	if errors.Is(err, service.ErrStreamFinished) {
		c.Status(http.StatusNoContent)
		return
	}
	if !started {
		writeError(c, err)
		return
	}
	h.logger.Warnf("log stream %s ended: %v", id, err)
	c.SSEvent(logstream.EventError, err.Error())
	c.Writer.Flush()
}

// StreamLogsWS is the WebSocket variant of StreamLogs. Each record is sent
// as a JSON object {"event", "data"}.
func (h *InstallHandler) StreamLogsWS(c *gin.Context) {
	id := c.Param("run_id")
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warnf("websocket upgrade for run %s failed: %v", id, err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	go func() {
		// the reader only notices the peer going away
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	err = h.installService.StreamRun(ctx, id, 0, func(ev logstream.Event) error {
		return conn.WriteJSON(ev)
	})
	if err != nil && ctx.Err() == nil {
		conn.WriteJSON(logstream.Event{Event: logstream.EventError, Data: err.Error()})
	}
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// RawLog handles GET /install/logs/:run_id/raw.
func (h *InstallHandler) RawLog(c *gin.Context) {
	text, err := h.installService.RawLog(c.Request.Context(), c.Param("run_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(text))
}

// DownloadLog handles GET /install/logs/:run_id/download.
func (h *InstallHandler) DownloadLog(c *gin.Context) {
	id := c.Param("run_id")
	text, err := h.installService.RawLog(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="autovpn-%s.log"`, id))
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(text))
}

// ListRuns handles GET /install/runs.
func (h *InstallHandler) ListRuns(c *gin.Context) {
	resp, err := h.installService.ListRuns(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
