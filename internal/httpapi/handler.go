// Package httpapi binds the task store, aggregator and attachment pipeline
// to the JSON API consumed by the presentation layer.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/woodsmokeheart/tracker/internal/auth"
	"github.com/woodsmokeheart/tracker/internal/gateway"
	"github.com/woodsmokeheart/tracker/internal/image"
	"github.com/woodsmokeheart/tracker/internal/model"
	"github.com/woodsmokeheart/tracker/internal/notify"
	"github.com/woodsmokeheart/tracker/internal/productivity"
	"github.com/woodsmokeheart/tracker/internal/store"
)

type Handler struct {
	stores   *store.Manager
	pipeline *image.Pipeline
	feed     *notify.Feed
	gw       gateway.Gateway
	logger   *log.Logger
	validate *validator.Validate

	maxUploadBytes int64
}

func New(stores *store.Manager, pipeline *image.Pipeline, feed *notify.Feed, gw gateway.Gateway, maxUploadBytes int64, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	if maxUploadBytes <= 0 {
		maxUploadBytes = 5 << 20
	}
	return &Handler{
		stores:         stores,
		pipeline:       pipeline,
		feed:           feed,
		gw:             gw,
		logger:         logger,
		validate:       validator.New(),
		maxUploadBytes: maxUploadBytes,
	}
}

// Register attaches the authenticated API surface to r; the caller wraps r
// with the session middleware.
func (h *Handler) Register(r chi.Router) {
	r.Get("/tasks", h.ListTasks)
	r.Post("/tasks", h.CreateTask)
	r.Post("/tasks/undo", h.UndoDelete)
	r.Get("/tasks/pending", h.PendingDelete)
	r.Patch("/tasks/{id}", h.UpdateTask)
	r.Delete("/tasks/{id}", h.DeleteTask)
	r.Post("/tasks/{id}/image", h.AttachImage)
	r.Get("/counters", h.ListCounters)
	r.Get("/stats", h.Stats)
	r.Post("/data/clear", h.ClearData)
	r.Get("/notifications", h.Notifications)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"error": msg})
}

func (h *Handler) storeFor(w http.ResponseWriter, r *http.Request) (*store.Store, bool) {
	u, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeErr(w, http.StatusUnauthorized, "unauthorized")
		return nil, false
	}
	st := h.stores.For(u.ID)
	if err := st.EnsureLoaded(r.Context()); err != nil {
		h.logger.Printf("tracker: initial fetch for %s failed: %v", u.ID, err)
		writeErr(w, http.StatusBadGateway, "could not fetch tasks")
		return nil, false
	}
	return st, true
}

func (h *Handler) writeStoreErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrEmptyTitle):
		writeErr(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrTaskNotFound), errors.Is(err, gateway.ErrNotFound):
		writeErr(w, http.StatusNotFound, "task not found")
	case errors.Is(err, store.ErrNoPendingDelete):
		writeErr(w, http.StatusConflict, err.Error())
	case errors.Is(err, image.ErrUnsupportedType),
		errors.Is(err, image.ErrTooLarge),
		errors.Is(err, image.ErrEmptyImage):
		writeErr(w, http.StatusBadRequest, err.Error())
	default:
		writeErr(w, http.StatusBadGateway, "operation failed, please try again")
	}
}

type taskCounts struct {
	All       int `json:"all"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
}

func countTasks(tasks []model.Task) taskCounts {
	c := taskCounts{All: len(tasks)}
	for _, t := range tasks {
		if t.Completed {
			c.Completed++
		} else {
			c.Active++
		}
	}
	return c
}

func filterTasks(tasks []model.Task, filter string) []model.Task {
	out := make([]model.Task, 0, len(tasks))
	for _, t := range tasks {
		switch filter {
		case "completed":
			if t.Completed {
				out = append(out, t)
			}
		case "all":
			out = append(out, t)
		default: // active
			if !t.Completed {
				out = append(out, t)
			}
		}
	}
	return out
}

// GET /api/tasks?filter=active|completed|all
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	st, ok := h.storeFor(w, r)
	if !ok {
		return
	}

	tasks, err := st.Refresh(r.Context())
	if err != nil {
		h.writeStoreErr(w, err)
		return
	}

	filter := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("filter")))
	resp := map[string]any{
		"tasks":  filterTasks(tasks, filter),
		"counts": countTasks(tasks),
	}
	if secs, pending := st.RemainingSeconds(); pending {
		resp["pending_delete"] = map[string]any{"remaining_seconds": secs}
	}
	writeJSON(w, http.StatusOK, resp)
}

type createTaskRequest struct {
	Title       string `json:"title" validate:"required"`
	Description string `json:"description"`
}

// POST /api/tasks
// Accepts JSON or multipart form data; a multipart "image" part is uploaded
// before the task record is written, and a failed upload aborts the create.
func (h *Handler) CreateTask(w http.ResponseWriter, r *http.Request) {
	st, ok := h.storeFor(w, r)
	if !ok {
		return
	}

	var req createTaskRequest
	var imageData []byte

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+1<<20)
		if err := r.ParseMultipartForm(h.maxUploadBytes + 1<<20); err != nil {
			writeErr(w, http.StatusBadRequest, "invalid multipart form")
			return
		}
		req.Title = r.FormValue("title")
		req.Description = r.FormValue("description")

		data, ok := h.readImagePart(w, r, false)
		if !ok {
			return
		}
		imageData = data
	} else {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErr(w, http.StatusBadRequest, "invalid json")
			return
		}
	}

	if err := h.validate.Struct(req); err != nil {
		writeErr(w, http.StatusBadRequest, "title is required")
		return
	}

	imageURL := ""
	if len(imageData) > 0 {
		u, ok := auth.UserFromContext(r.Context())
		if !ok {
			writeErr(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		url, err := h.pipeline.Attach(r.Context(), u.ID, imageData)
		if err != nil {
			h.writeStoreErr(w, err)
			return
		}
		imageURL = url
	}

	res, err := st.Add(r.Context(), req.Title, req.Description, imageURL)
	if err != nil {
		h.writeStoreErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"task": res.Task, "tasks": res.Tasks})
}

type updateTaskRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Completed   *bool   `json:"completed"`
}

// PATCH /api/tasks/{id}
// Field edits and completion toggles share this endpoint; a completion
// change additionally drives the productivity counter.
func (h *Handler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	st, ok := h.storeFor(w, r)
	if !ok {
		return
	}
	id := model.TaskID(chi.URLParam(r, "id"))

	var req updateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}

	var res store.MutationResult
	var err error

	if req.Title != nil || req.Description != nil {
		res, err = st.Edit(r.Context(), id, gateway.TaskPatch{
			Title:       req.Title,
			Description: req.Description,
		})
		if err != nil {
			h.writeStoreErr(w, err)
			return
		}
	}

	if req.Completed != nil {
		current, found := taskByID(st.Visible(), id)
		if !found {
			h.writeStoreErr(w, store.ErrTaskNotFound)
			return
		}
		if current.Completed != *req.Completed {
			res, err = st.Toggle(r.Context(), id)
			if err != nil {
				h.writeStoreErr(w, err)
				return
			}
		} else {
			res = store.MutationResult{Outcome: store.OutcomeConfirmed, Task: current, Tasks: st.Visible()}
		}
	}

	if res.Tasks == nil {
		writeErr(w, http.StatusBadRequest, "empty update")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"task": res.Task, "tasks": res.Tasks})
}

// DELETE /api/tasks/{id} — starts the undo grace window.
func (h *Handler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	st, ok := h.storeFor(w, r)
	if !ok {
		return
	}
	id := model.TaskID(chi.URLParam(r, "id"))

	deadline, err := st.Delete(r.Context(), id)
	if err != nil {
		h.writeStoreErr(w, err)
		return
	}
	secs, _ := st.RemainingSeconds()
	writeJSON(w, http.StatusOK, map[string]any{
		"deadline":          deadline.Format(time.RFC3339Nano),
		"remaining_seconds": secs,
		"tasks":             st.Visible(),
	})
}

// POST /api/tasks/undo
func (h *Handler) UndoDelete(w http.ResponseWriter, r *http.Request) {
	st, ok := h.storeFor(w, r)
	if !ok {
		return
	}

	task, err := st.Undo()
	if err != nil {
		h.writeStoreErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"task": task, "tasks": st.Visible()})
}

// GET /api/tasks/pending — remaining undo window for the toast countdown.
func (h *Handler) PendingDelete(w http.ResponseWriter, r *http.Request) {
	st, ok := h.storeFor(w, r)
	if !ok {
		return
	}
	secs, pending := st.RemainingSeconds()
	writeJSON(w, http.StatusOK, map[string]any{
		"pending":           pending,
		"remaining_seconds": secs,
	})
}

// POST /api/tasks/{id}/image — replaces the task's attachment.
func (h *Handler) AttachImage(w http.ResponseWriter, r *http.Request) {
	st, ok := h.storeFor(w, r)
	if !ok {
		return
	}
	id := model.TaskID(chi.URLParam(r, "id"))

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(h.maxUploadBytes + 1<<20); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	data, ok := h.readImagePart(w, r, true)
	if !ok {
		return
	}

	u, _ := auth.UserFromContext(r.Context())
	url, err := h.pipeline.Attach(r.Context(), u.ID, data)
	if err != nil {
		h.writeStoreErr(w, err)
		return
	}

	res, err := st.Edit(r.Context(), id, gateway.TaskPatch{ImageURL: &url})
	if err != nil {
		h.writeStoreErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"task": res.Task, "tasks": res.Tasks})
}

// GET /api/counters
func (h *Handler) ListCounters(w http.ResponseWriter, r *http.Request) {
	agg, ok := h.aggFor(w, r)
	if !ok {
		return
	}
	counters, err := agg.Refresh(r.Context())
	if err != nil {
		h.writeStoreErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"counters": counters})
}

// GET /api/stats?range=day|week|month
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	agg, ok := h.aggFor(w, r)
	if !ok {
		return
	}
	if _, err := agg.Refresh(r.Context()); err != nil {
		h.writeStoreErr(w, err)
		return
	}

	rng := productivity.Range(strings.ToLower(strings.TrimSpace(r.URL.Query().Get("range"))))
	if rng == "" {
		rng = productivity.RangeWeek
	}
	summary, err := agg.QueryWindow(rng)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// POST /api/data/clear — removes every task and counter for the user.
func (h *Handler) ClearData(w http.ResponseWriter, r *http.Request) {
	st, ok := h.storeFor(w, r)
	if !ok {
		return
	}
	u, _ := auth.UserFromContext(r.Context())

	if err := h.gw.ClearOwner(r.Context(), u.ID); err != nil {
		h.writeStoreErr(w, err)
		return
	}
	if _, err := st.Refresh(r.Context()); err != nil {
		h.writeStoreErr(w, err)
		return
	}
	if agg := st.Aggregator(); agg != nil {
		if _, err := agg.Refresh(r.Context()); err != nil {
			h.writeStoreErr(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// GET /api/notifications — drains the user's pending toast messages.
func (h *Handler) Notifications(w http.ResponseWriter, r *http.Request) {
	u, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeErr(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": h.feed.Drain(u.ID)})
}

func (h *Handler) aggFor(w http.ResponseWriter, r *http.Request) (*productivity.Aggregator, bool) {
	st, ok := h.storeFor(w, r)
	if !ok {
		return nil, false
	}
	agg := st.Aggregator()
	if agg == nil {
		writeErr(w, http.StatusInternalServerError, "stats unavailable")
		return nil, false
	}
	return agg, true
}

// readImagePart pulls the optional "image" part out of a parsed multipart
// form. With required set, a missing part is a client error.
func (h *Handler) readImagePart(w http.ResponseWriter, r *http.Request, required bool) ([]byte, bool) {
	file, _, err := r.FormFile("image")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			if required {
				writeErr(w, http.StatusBadRequest, "image is required")
				return nil, false
			}
			return nil, true
		}
		writeErr(w, http.StatusBadRequest, "invalid image upload")
		return nil, false
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxUploadBytes+1))
	if err != nil {
		writeErr(w, http.StatusBadRequest, "could not read image")
		return nil, false
	}
	return data, true
}

func taskByID(tasks []model.Task, id model.TaskID) (model.Task, bool) {
	for _, t := range tasks {
		if t.ID == id {
			return t, true
		}
	}
	return model.Task{}, false
}
