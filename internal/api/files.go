package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/shapedtime/syncstream/internal/room"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Viewer channel is cross-origin by design; the auth token carried on
	// the handshake is the access boundary, not the page origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// serveFile implements GET /files/:room_id/:file_ind — a 200/206 streaming
// response for torrent-backed rooms or a 303 redirect for link-backed ones.
func (s *Server) serveFile(c *gin.Context) {
	if _, ok := s.authenticate(c); !ok {
		return
	}

	roomID := c.Param("room_id")
	fileInd, err := strconv.Atoi(c.Param("file_ind"))
	if err != nil || fileInd < 0 {
		errorResponse(c, http.StatusBadRequest, "invalid file index")
		return
	}

	r, err := s.storage.Get(c.Request.Context(), roomID)
	if err != nil {
		errorResponse(c, http.StatusNotFound, "room not found")
		return
	}

	if err := r.ServeFile(c, fileInd); err != nil {
		slog.Error("api: failed to serve file", "room_id", roomID, "file_ind", fileInd, "err", err)
		if !c.Writer.Written() {
			errorResponse(c, http.StatusNotFound, "file not found")
		}
	}
}

// attachViewer implements GET /rooms/:id/ws — the viewer channel upgrade.
func (s *Server) attachViewer(c *gin.Context) {
	userID, ok := s.authenticate(c)
	if !ok {
		return
	}

	roomID := c.Param("id")
	r, err := s.storage.Get(c.Request.Context(), roomID)
	if err != nil {
		errorResponse(c, http.StatusNotFound, "room not found")
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Debug("api: websocket upgrade failed", "room_id", roomID, "err", err)
		return
	}

	conn := r.AddConnection(ws, room.User{DisplayName: userID})
	defer func() {
		r.RemoveConnection(conn.ID)
		conn.Close()
	}()

	for {
		frame, err := conn.ReadFrame()
		if err != nil {
			break
		}
		r.HandleFrame(frame, conn.ID)
	}
}
