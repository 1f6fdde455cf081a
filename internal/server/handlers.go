package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/hyperjump/kiku/internal/config"
	"github.com/hyperjump/kiku/internal/models"
	"github.com/hyperjump/kiku/internal/service"
	"go.uber.org/zap"
)

// multipartMemory is how much of a multipart upload is buffered in memory before
// spilling to temporary files.
const multipartMemory = 32 << 20

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.config.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes)
	}
	in, err := s.readUpload(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, http.StatusRequestEntityTooLarge, models.KindInvalidInput,
				fmt.Sprintf("upload exceeds %d bytes", s.config.MaxUploadBytes))
			return
		}
		s.respondErr(w, err)
		return
	}
	s.logger.Debug("upload request", zap.String("filename", in.Filename), zap.Int("size", len(in.Content)))
	doc, err := s.svc.Upload(r.Context(), in)
	if err != nil {
		s.logger.Warn("upload failed", zap.String("filename", in.Filename), zap.Error(err))
		if doc.ID != "" {
			s.respondJSON(w, StatusFor(err), errorResponse{
				Error:    errorBody{Kind: models.KindOf(err), Message: err.Error()},
				Document: &doc,
			})
			return
		}
		s.respondErr(w, err)
		return
	}
	status := http.StatusCreated
	if !doc.State.Terminal() {
		status = http.StatusAccepted
	}
	s.respondJSON(w, status, doc)
}

// readUpload accepts a multipart form with a "file" field or a raw request body.
func (s *Server) readUpload(r *http.Request) (service.UploadInput, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		content, err := io.ReadAll(r.Body)
		if err != nil {
			return service.UploadInput{}, err
		}
		name := r.URL.Query().Get("filename")
		if name == "" {
			if _, params, err := mime.ParseMediaType(r.Header.Get("Content-Disposition")); err == nil {
				name = params["filename"]
			}
		}
		return service.UploadInput{
			Filename:    filepath.Base(name),
			ContentType: r.Header.Get("Content-Type"),
			Content:     content,
		}, nil
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return service.UploadInput{}, err
		}
		return service.UploadInput{}, fmt.Errorf("%w: malformed multipart body: %v", models.ErrInvalidInput, err)
	}
	defer r.MultipartForm.RemoveAll()
	file, header, err := r.FormFile("file")
	if err != nil {
		return service.UploadInput{}, fmt.Errorf("%w: multipart field \"file\" is required", models.ErrInvalidInput)
	}
	defer file.Close()
	content, err := io.ReadAll(file)
	if err != nil {
		return service.UploadInput{}, err
	}
	ct := header.Header.Get("Content-Type")
	if ct == "" || ct == "application/octet-stream" {
		// Clients that do not label parts fall back to the file extension.
		if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(header.Filename))); byExt != "" {
			ct = byExt
		}
	}
	return service.UploadInput{Filename: filepath.Base(header.Filename), ContentType: ct, Content: content}, nil
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs := s.svc.List()
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"documents": docs, "total": len(docs)})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.svc.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, doc)
}

func (s *Server) handleRawDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, err := s.svc.Get(id)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	raw, err := s.svc.Fetch(r.Context(), id)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	w.Header().Set("Content-Type", service.PDFContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(raw)))
	if doc.Filename != "" {
		w.Header().Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": doc.Filename}))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("delete document request", zap.String("doc_id", id))
	if err := s.svc.Delete(r.Context(), id); err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}

type chatRequest struct {
	Question string `json:"question"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, models.KindInvalidInput, "invalid request body")
		return
	}
	turn, err := s.svc.Chat(r.Context(), id, req.Question)
	if err != nil {
		s.logger.Debug("chat failed", zap.String("doc_id", id), zap.Error(err))
		body := errorResponse{Error: errorBody{Kind: models.KindOf(err), Message: err.Error()}}
		if turn != nil {
			body.Turn = models.NewAnswer(turn)
		}
		s.respondJSON(w, StatusFor(err), body)
		return
	}
	s.respondJSON(w, http.StatusOK, models.NewAnswer(turn))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	turns, err := s.svc.History(chi.URLParam(r, "id"))
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"turns": turns})
}

func (s *Server) handlePassages(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.respondError(w, http.StatusBadRequest, models.KindInvalidInput, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	passages, err := s.svc.SearchPassages(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("q"), limit)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"passages": passages})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.Status(r.Context())
	if err != nil {
		s.logger.Error("status failed", zap.Error(err))
		s.respondErr(w, err)
		return
	}
	resp := map[string]interface{}{"status": st}
	if s.watch != nil {
		resp["watch_directories"] = s.watch.Directories()
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleWatchDirectoriesList(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, models.KindInvalidConfiguration, "watch not enabled")
		return
	}
	dirs := s.watch.Directories()
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"directories": dirs})
}

type watchAddRequest struct {
	Path string `json:"path"`
	Sync *bool  `json:"sync,omitempty"`
}

func (s *Server) handleWatchDirectoriesAdd(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, models.KindInvalidConfiguration, "watch not enabled")
		return
	}
	var req watchAddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, models.KindInvalidInput, "invalid request body")
		return
	}
	if req.Path == "" {
		s.respondError(w, http.StatusBadRequest, models.KindInvalidInput, "path is required")
		return
	}
	abs, err := filepath.Abs(req.Path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, models.KindInvalidInput, "invalid path")
		return
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			s.respondError(w, http.StatusNotFound, models.KindNotFound, "directory not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, models.KindInternal, err.Error())
		return
	}
	if !info.IsDir() {
		s.respondError(w, http.StatusBadRequest, models.KindInvalidInput, "path is not a directory")
		return
	}
	syncExisting := true
	if req.Sync != nil {
		syncExisting = *req.Sync
	}
	s.logger.Debug("watch add directory request", zap.String("path", abs), zap.Bool("sync_existing", syncExisting))
	if err := s.watch.AddDirectory(abs, syncExisting); err != nil {
		s.logger.Error("watch add directory failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, models.KindInternal, err.Error())
		return
	}
	s.persistWatchDirectories()
	s.respondJSON(w, http.StatusCreated, map[string]string{"path": abs, "status": "added"})
}

func (s *Server) handleWatchDirectoriesRemove(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, models.KindInvalidConfiguration, "watch not enabled")
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		var body struct {
			Path string `json:"path"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil && body.Path != "" {
			path = body.Path
		}
	}
	if path == "" {
		s.respondError(w, http.StatusBadRequest, models.KindInvalidInput, "path is required (query or body)")
		return
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, models.KindInvalidInput, "invalid path")
		return
	}
	s.logger.Debug("watch remove directory request", zap.String("path", abs))
	if err := s.watch.RemoveDirectory(abs); err != nil {
		s.logger.Error("watch remove directory failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, models.KindInternal, err.Error())
		return
	}
	s.persistWatchDirectories()
	s.respondJSON(w, http.StatusOK, map[string]string{"path": abs, "status": "removed"})
}

// persistWatchDirectories writes the current inbox directories back to the config file.
func (s *Server) persistWatchDirectories() {
	if s.configPath == "" || s.watchConfig == nil {
		return
	}
	s.watchConfigMu.Lock()
	s.watchConfig.Watch.Directories = s.watch.Directories()
	err := config.Save(s.configPath, s.watchConfig)
	s.watchConfigMu.Unlock()
	if err != nil {
		s.logger.Warn("failed to persist watch config", zap.Error(err))
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, kind models.Kind, message string) {
	s.respondJSON(w, status, errorResponse{Error: errorBody{Kind: kind, Message: message}})
}

// respondErr classifies err and writes it with the matching status.
func (s *Server) respondErr(w http.ResponseWriter, err error) {
	s.respondError(w, StatusFor(err), models.KindOf(err), err.Error())
}
