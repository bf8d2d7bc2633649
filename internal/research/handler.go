package research

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ayush/research-assistant/backend/internal/models"
	"github.com/ayush/research-assistant/backend/internal/respond"
)

// MaxUploadBytes bounds a single uploaded file.
const MaxUploadBytes = 32 << 20

// Handler holds research HTTP handlers.
type Handler struct {
	svc *Service
	log *zap.Logger
}

func NewHandler(svc *Service, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{svc: svc, log: log}
}

// Routes mounts the research API on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.Root)
	r.Post("/upload", h.Upload)
	r.Post("/research", h.Create)
	r.Get("/research/{id}", h.Status)
	r.Get("/reports/{userID}", h.Reports)
	r.Get("/stats/{userID}", h.Stats)
	r.Get("/news", h.News)
	r.Put("/users/{userID}/credits", h.DeductCredits)
}

// Root identifies the API.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	respond.JSON(w, http.StatusOK, map[string]string{"message": "Smart Research Assistant API"})
}

// Create accepts a research question and starts processing it in the
// background. Both JSON and form bodies are accepted; in a form, file_ids is
// a JSON-encoded array.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	req, err := decodeCreate(r)
	if err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" {
		respond.Error(w, http.StatusBadRequest, "user_id is required")
		return
	}

	resp, err := h.svc.Submit(r.Context(), req)
	switch {
	case err == nil:
		respond.JSON(w, http.StatusOK, resp)
	case errors.Is(err, ErrUserNotFound):
		respond.Error(w, http.StatusBadRequest, "User not found")
	case errors.Is(err, ErrInsufficientCredits):
		respond.Error(w, http.StatusBadRequest, "Insufficient credits")
	case errors.Is(err, ErrEmptyQuestion):
		respond.Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrDispatcherClosed):
		respond.Error(w, http.StatusServiceUnavailable, "Server is shutting down")
	default:
		h.log.Error("submit research", zap.Error(err))
		respond.Error(w, http.StatusInternalServerError, "Research request failed")
	}
}

func decodeCreate(r *http.Request) (models.CreateRequest, error) {
	var req models.CreateRequest
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	switch ct {
	case "multipart/form-data", "application/x-www-form-urlencoded":
		if ct == "multipart/form-data" {
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				return req, err
			}
		} else if err := r.ParseForm(); err != nil {
			return req, err
		}
		req.UserID = r.FormValue("user_id")
		req.Question = r.FormValue("question")
		if raw := strings.TrimSpace(r.FormValue("file_ids")); raw != "" {
			if err := json.Unmarshal([]byte(raw), &req.FileIDs); err != nil {
				return req, err
			}
		}
	default:
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return req, err
		}
	}
	return req, nil
}

// Status returns a job's status and, when completed, its report.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	resp, err := h.svc.Status(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, models.ErrNotFound) {
		respond.Error(w, http.StatusNotFound, "Research question not found")
		return
	}
	if err != nil {
		h.log.Error("research status", zap.Error(err))
		respond.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	respond.JSON(w, http.StatusOK, resp)
}

// Reports lists a user's completed reports with their jobs.
func (h *Handler) Reports(w http.ResponseWriter, r *http.Request) {
	entries, err := h.svc.Reports(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.log.Error("list reports", zap.Error(err))
		respond.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	respond.JSON(w, http.StatusOK, entries)
}

// Stats returns a user's usage summary.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Stats(r.Context(), chi.URLParam(r, "userID"))
	if errors.Is(err, ErrUserNotFound) {
		respond.Error(w, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		h.log.Error("user stats", zap.Error(err))
		respond.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	respond.JSON(w, http.StatusOK, stats)
}

// News returns the live-data items.
func (h *Handler) News(w http.ResponseWriter, r *http.Request) {
	respond.JSON(w, http.StatusOK, h.svc.News())
}

// DeductCredits lowers a user's balance by ?credits_used=N.
func (h *Handler) DeductCredits(w http.ResponseWriter, r *http.Request) {
	amount, err := strconv.Atoi(r.URL.Query().Get("credits_used"))
	if err != nil {
		respond.Error(w, http.StatusBadRequest, "credits_used must be an integer")
		return
	}

	remaining, err := h.svc.Ledger().Deduct(r.Context(), chi.URLParam(r, "userID"), amount)
	switch {
	case err == nil:
		respond.JSON(w, http.StatusOK, map[string]int{"credits_remaining": remaining})
	case errors.Is(err, ErrUserNotFound):
		respond.Error(w, http.StatusNotFound, "User not found")
	case errors.Is(err, ErrInvalidAmount):
		respond.Error(w, http.StatusBadRequest, err.Error())
	default:
		h.log.Error("deduct credits", zap.Error(err))
		respond.Error(w, http.StatusInternalServerError, "database error")
	}
}

// Upload stores a multipart "file" field and returns its id.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes+(1<<20))
	file, header, err := r.FormFile("file")
	if err != nil {
		respond.Error(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, MaxUploadBytes+1))
	if err != nil {
		respond.Error(w, http.StatusBadRequest, "could not read file")
		return
	}
	if len(data) > MaxUploadBytes {
		respond.Error(w, http.StatusRequestEntityTooLarge, "file too large")
		return
	}

	resp, err := h.svc.RegisterFile(r.Context(), header.Filename, header.Header.Get("Content-Type"), data)
	if err != nil {
		h.log.Error("file upload", zap.Error(err))
		respond.Error(w, http.StatusInternalServerError, "File upload failed")
		return
	}
	respond.JSON(w, http.StatusOK, resp)
}
