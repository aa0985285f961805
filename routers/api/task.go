package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"SceneForge-server/models"
	"SceneForge-server/service"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// GET /v1/api/tasks/:task_id
func (h *Handler) GetTaskStatus(c *gin.Context) {
	view, err := h.Projects.Batch(c.Request.Context(), userID(c), c.Param("task_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// POST /v1/api/tasks/:task_id/cancel stops tracking a running batch. Jobs
// already submitted keep running at the provider.
func (h *Handler) CancelTask(c *gin.Context) {
	taskID := c.Param("task_id")
	view, err := h.Projects.Batch(c.Request.Context(), userID(c), taskID)
	if err != nil {
		respondError(c, err)
		return
	}
	if models.TaskIsTerminal(view.Task.Status) {
		respondError(c, service.InvalidInput("task is already %s", view.Task.Status))
		return
	}
	if h.Canceller == nil || !h.Canceller.CancelBatch(taskID) {
		// not running yet: end it before a worker dequeues it
		if err := h.Projects.CancelQueued(c.Request.Context(), userID(c), taskID); err != nil {
			respondError(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"task_id": taskID, "cancelled": true})
}

// snapshotKey changes whenever the task status, its progress or any scene job
// changes.
func snapshotKey(v *service.BatchView) string {
	parts := lo.Map(v.SceneJobs, func(j models.SceneJob, _ int) string {
		return string(j.Status) + "|" + j.VideoURL
	})
	return v.Task.Status + "|" + strconv.Itoa(v.Task.Progress) + "|" + strings.Join(parts, ",")
}

// GET /tasks/:task_id/wss pushes the batch snapshot every time it changes and
// closes once the task is terminal.
func (h *Handler) TaskProgressWebSocket(c *gin.Context) {
	taskID := c.Param("task_id")
	uid := userID(c)

	// answer unknown or foreign tasks over plain HTTP
	view, err := h.Projects.Batch(c.Request.Context(), uid, taskID)
	if err != nil {
		respondError(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.Log.Warn().Err(err).Str("task_id", taskID).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// the read pump only notices the client going away
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := conn.WriteJSON(view); err != nil {
		return
	}
	if models.TaskIsTerminal(view.Task.Status) {
		closeNormal(conn)
		return
	}

	interval := h.PushInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	prev := snapshotKey(view)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		cur, err := h.Projects.Batch(ctx, uid, taskID)
		if err != nil {
			// retried on the next tick
			h.Log.Debug().Err(err).Str("task_id", taskID).Msg("reload batch")
			continue
		}
		if key := snapshotKey(cur); key != prev {
			if err := conn.WriteJSON(cur); err != nil {
				return
			}
			prev = key
		}
		if models.TaskIsTerminal(cur.Task.Status) {
			closeNormal(conn)
			return
		}
	}
}

func closeNormal(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "task finished")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}
