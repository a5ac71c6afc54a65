package server

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/riftvanta/tms062025/internal/model"
)

const maxScreenshotSize = 10 << 20 // 10 MiB

const thumbnailWidth = 320

// UploadScreenshotHandler attaches a payment screenshot to an order.
// The original is kept on disk under a uuid name next to a generated
// thumbnail; only metadata goes into the database.
func (s *Server) UploadScreenshotHandler(w http.ResponseWriter, r *http.Request) {
	order, user, ok := s.loadOrder(w, r)
	if !ok {
		return
	}
	if user.Role != model.RoleExchange {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	if order.Status.Terminal() {
		http.Error(w, "order is in a terminal status", http.StatusConflict)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxScreenshotSize)
	file, header, err := r.FormFile("screenshot")
	if err != nil {
		http.Error(w, "screenshot file required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "failed to read upload", http.StatusBadRequest)
		return
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		http.Error(w, "file is not an image", http.StatusUnprocessableEntity)
		return
	}

	if err := os.MkdirAll(s.config.UploadsDir, 0o755); err != nil {
		s.deps.Logger.Errorf("create uploads dir: %v", err)
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}

	id := uuid.NewString()
	ext := strings.ToLower(filepath.Ext(header.Filename))
	switch ext {
	case ".png", ".jpg", ".jpeg", ".gif":
	default:
		ext = ".png"
	}
	filename := id + ext

	if err := os.WriteFile(filepath.Join(s.config.UploadsDir, filename), data, 0o644); err != nil {
		s.deps.Logger.Errorf("write screenshot: %v", err)
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}

	thumb := imaging.Resize(img, thumbnailWidth, 0, imaging.Lanczos)
	if err := imaging.Save(thumb, filepath.Join(s.config.UploadsDir, thumbnailName(id))); err != nil {
		s.deps.Logger.Errorf("write thumbnail: %v", err)
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}

	att := model.Attachment{
		ID:           id,
		OrderID:      order.ID,
		UploaderID:   user.ID,
		Filename:     filename,
		OriginalName: header.Filename,
		SizeBytes:    int64(len(data)),
	}

	if err := s.chats.AddAttachment(r.Context(), att); err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, http.StatusCreated, att)
}

func (s *Server) ListAttachmentsHandler(w http.ResponseWriter, r *http.Request) {
	order, _, ok := s.loadOrder(w, r)
	if !ok {
		return
	}

	attachments, err := s.chats.ListAttachments(r.Context(), order.ID)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}

	if len(attachments) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	s.writeJSON(w, http.StatusOK, attachments)
}

// DownloadAttachmentHandler serves the stored screenshot, or its
// thumbnail when ?thumb=1 is given.
func (s *Server) DownloadAttachmentHandler(w http.ResponseWriter, r *http.Request) {
	order, _, ok := s.loadOrder(w, r)
	if !ok {
		return
	}

	att, err := s.chats.GetAttachment(r.Context(), chi.URLParam(r, "attachmentID"))
	if err != nil || att.OrderID != order.ID {
		http.Error(w, "attachment not found", http.StatusNotFound)
		return
	}

	filename := att.Filename
	if r.URL.Query().Get("thumb") == "1" {
		filename = thumbnailName(att.ID)
	} else {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", att.OriginalName))
	}

	http.ServeFile(w, r, filepath.Join(s.config.UploadsDir, filename))
}

func thumbnailName(id string) string {
	return id + "_thumb.jpg"
}
