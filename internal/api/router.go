package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"portalmail/internal/auth"
	"portalmail/internal/config"
	"portalmail/internal/mail"
	"portalmail/internal/service"
	"portalmail/internal/util"
	"portalmail/internal/version"
)

const maxScheduleBytes = 1 << 20

type Handlers struct {
	cfg config.Config
	svc *service.Service
}

func NewRouter(cfg config.Config, svc *service.Service) http.Handler {
	h := &Handlers{cfg: cfg, svc: svc}
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.CORSAllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type"},
		}))
	}

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		util.WriteJSON(w, 200, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
			util.WriteJSON(w, 200, version.Current())
		})
		r.Get("/mailboxes", h.ListMailboxes)
		r.Get("/messages", h.ListMessages)
		r.Get("/messages/{id}", h.GetMessage)
		r.Post("/send", h.SendMessage)
		r.Get("/schedule", h.GetSchedule)
		r.Put("/schedule", h.PutSchedule)
		r.Post("/schedule/run", h.RunSchedule)
		r.Get("/history", h.History)
	})

	return r
}

func (h *Handlers) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrNoCredentials), errors.Is(err, service.ErrNoUsername):
		util.WriteError(w, http.StatusUnauthorized, "no_credentials", err.Error())
	case errors.Is(err, mail.ErrAuthFailed):
		util.WriteError(w, http.StatusUnauthorized, "auth_failed", err.Error())
	case errors.Is(err, service.ErrNotFound):
		util.WriteError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, service.ErrInvalidSend):
		util.WriteError(w, http.StatusBadRequest, "invalid_send", err.Error())
	default:
		util.WriteError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func (h *Handlers) ListMailboxes(w http.ResponseWriter, r *http.Request) {
	boxes, err := h.svc.Mailboxes(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	util.WriteJSON(w, 200, map[string]any{"mailboxes": boxes})
}

func (h *Handlers) ListMessages(w http.ResponseWriter, r *http.Request) {
	mailbox := r.URL.Query().Get("mailbox")
	if mailbox == "" {
		mailbox = "INBOX"
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	unread := r.URL.Query().Get("unread") == "true"

	var (
		msgs []service.MessageSummary
		err  error
	)
	if unread {
		msgs, err = h.svc.Unread(r.Context(), mailbox, limit)
	} else {
		msgs, err = h.svc.Messages(r.Context(), mailbox, limit)
	}
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	util.WriteJSON(w, 200, map[string]any{"mailbox": mailbox, "messages": msgs})
}

func (h *Handlers) GetMessage(w http.ResponseWriter, r *http.Request) {
	mailbox := r.URL.Query().Get("mailbox")
	if mailbox == "" {
		mailbox = "INBOX"
	}
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 32)
	if err != nil {
		util.WriteError(w, http.StatusBadRequest, "bad_request", "invalid message id")
		return
	}
	content, err := h.svc.Read(r.Context(), mailbox, uint32(id))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	util.WriteJSON(w, 200, content)
}

type sendRequest struct {
	Kind        string   `json:"kind"`
	To          string   `json:"to"`
	Subject     string   `json:"subject"`
	Body        string   `json:"body"`
	Attachments []string `json:"attachments"`
}

func (h *Handlers) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		util.WriteError(w, http.StatusBadRequest, "bad_request", "invalid json")
		return
	}
	if req.Kind == "" {
		req.Kind = mail.KindPlaintext
	}
	if err := h.svc.Send(r.Context(), req.Kind, req.To, req.Subject, req.Body, req.Attachments); err != nil {
		h.writeServiceError(w, err)
		return
	}
	util.WriteJSON(w, 200, map[string]string{"status": "sent"})
}

func (h *Handlers) GetSchedule(w http.ResponseWriter, r *http.Request) {
	content, err := h.svc.ScheduleShow()
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(200)
	_, _ = w.Write([]byte(content))
}

func (h *Handlers) PutSchedule(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxScheduleBytes))
	if err != nil {
		util.WriteError(w, http.StatusBadRequest, "bad_request", "cannot read body")
		return
	}
	if err := h.svc.ScheduleReplace(string(body)); err != nil {
		util.WriteError(w, http.StatusBadRequest, "invalid_schedule", err.Error())
		return
	}
	util.WriteJSON(w, 200, map[string]string{"status": "saved"})
}

func (h *Handlers) RunSchedule(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.RunSchedule(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	util.WriteJSON(w, 200, report)
}

func (h *Handlers) History(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	rows, err := h.svc.History(r.Context(), limit)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	util.WriteJSON(w, 200, map[string]any{"dispatches": rows})
}
