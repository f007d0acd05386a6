package api

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/shapedtime/syncstream/internal/store"
)

type roomView struct {
	RoomID      string `json:"room_id"`
	Name        string `json:"name"`
	ImageURL    string `json:"image_url"`
	SourceKind  string `json:"source_kind"`
	LastFileInd int    `json:"last_file_ind"`
}

func toView(rec store.RoomRecord) roomView {
	return roomView{
		RoomID:      rec.RoomID,
		Name:        rec.Name,
		ImageURL:    rec.ImageURL,
		SourceKind:  string(rec.SourceKind),
		LastFileInd: rec.LastFileInd,
	}
}

type createLinkRoomRequest struct {
	Name     string `json:"name" binding:"required"`
	ImageURL string `json:"image_url"`
	URL      string `json:"url" binding:"required"`
}

func (s *Server) createLinkRoom(c *gin.Context) {
	var req createLinkRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	rec := store.RoomRecord{
		RoomID:     uuid.NewString(),
		Name:       req.Name,
		ImageURL:   req.ImageURL,
		SourceKind: store.SourceLink,
		SourceData: req.URL,
	}

	if err := s.store.Create(rec); err != nil {
		if err == store.ErrDuplicateName {
			errorResponse(c, http.StatusBadRequest, "room name already in use")
			return
		}
		errorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}

	c.JSON(http.StatusCreated, toView(rec))
}

func (s *Server) createTorrentRoom(c *gin.Context) {
	name := c.PostForm("name")
	imageURL := c.PostForm("image_url")
	if name == "" {
		errorResponse(c, http.StatusBadRequest, "name is required")
		return
	}

	torrentPath, err := s.saveUploadedTorrent(c)
	if err != nil {
		return // saveUploadedTorrent already wrote the response
	}

	rec := store.RoomRecord{
		RoomID:     uuid.NewString(),
		Name:       name,
		ImageURL:   imageURL,
		SourceKind: store.SourceTorrent,
		SourceData: torrentPath,
	}

	if err := s.store.Create(rec); err != nil {
		os.Remove(torrentPath)
		if err == store.ErrDuplicateName {
			errorResponse(c, http.StatusBadRequest, "room name already in use")
			return
		}
		errorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}

	c.JSON(http.StatusCreated, toView(rec))
}

// saveUploadedTorrent validates and persists a multipart .torrent upload
// under TORRENT_FILES_SAVE_PATH, enforcing MAX_TORRENT_FILE_SIZE.
func (s *Server) saveUploadedTorrent(c *gin.Context) (string, error) {
	fh, err := c.FormFile("torrent")
	if err != nil {
		errorResponse(c, http.StatusBadRequest, "torrent file is required")
		return "", err
	}
	if fh.Size > s.cfg.MaxTorrentFileSize {
		errorResponse(c, http.StatusRequestEntityTooLarge, "torrent file too large")
		return "", fmt.Errorf("torrent file too large: %d bytes", fh.Size)
	}

	src, err := fh.Open()
	if err != nil {
		errorResponse(c, http.StatusBadRequest, "could not read uploaded file")
		return "", err
	}
	defer src.Close()

	if err := os.MkdirAll(s.cfg.FilesSavePath, 0o755); err != nil {
		errorResponse(c, http.StatusInternalServerError, err.Error())
		return "", err
	}

	destPath := filepath.Join(s.cfg.FilesSavePath, uuid.NewString()+".torrent")
	dest, err := os.Create(destPath)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, err.Error())
		return "", err
	}
	defer dest.Close()

	if _, err := io.Copy(dest, src); err != nil {
		os.Remove(destPath)
		errorResponse(c, http.StatusInternalServerError, err.Error())
		return "", err
	}

	return destPath, nil
}

func (s *Server) updateLinkRoom(c *gin.Context) {
	roomID := c.Param("id")
	rec, err := s.store.Get(roomID)
	if err != nil {
		errorResponse(c, http.StatusNotFound, "room not found")
		return
	}

	var req struct {
		URL string `json:"url" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	rec.SourceKind = store.SourceLink
	rec.SourceData = req.URL
	if err := s.store.Update(rec); err != nil {
		errorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}

	s.storage.Evict(roomID) // force reload with the new source on next access
	c.JSON(http.StatusOK, toView(rec))
}

func (s *Server) updateTorrentRoom(c *gin.Context) {
	roomID := c.Param("id")
	rec, err := s.store.Get(roomID)
	if err != nil {
		errorResponse(c, http.StatusNotFound, "room not found")
		return
	}

	torrentPath, err := s.saveUploadedTorrent(c)
	if err != nil {
		return
	}

	rec.SourceKind = store.SourceTorrent
	rec.SourceData = torrentPath
	if err := s.store.Update(rec); err != nil {
		os.Remove(torrentPath)
		errorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}

	s.storage.Evict(roomID)
	c.JSON(http.StatusOK, toView(rec))
}

func (s *Server) listRooms(c *gin.Context) {
	recs, err := s.store.List()
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}

	views := make([]roomView, len(recs))
	for i, rec := range recs {
		views[i] = toView(rec)
	}
	c.JSON(http.StatusOK, views)
}

func (s *Server) getRoom(c *gin.Context) {
	rec, err := s.store.Get(c.Param("id"))
	if err != nil {
		errorResponse(c, http.StatusNotFound, "room not found")
		return
	}
	c.JSON(http.StatusOK, toView(rec))
}

func (s *Server) deleteRoom(c *gin.Context) {
	roomID := c.Param("id")
	if err := s.storage.DeleteRoom(roomID); err != nil {
		if err == store.ErrNotFound {
			errorResponse(c, http.StatusNotFound, "room not found")
			return
		}
		errorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.Status(http.StatusNoContent)
}
