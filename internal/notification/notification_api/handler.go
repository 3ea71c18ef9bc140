package notification_api

import (
	"fmt"
	"net/http"

	"ms-auction/internal/auctionerr"
	"ms-auction/internal/auth"
	"ms-auction/internal/logger"
	"ms-auction/internal/models"
	"ms-auction/internal/notification"
	"ms-auction/internal/utils"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	Service *notification.Service
	Logger  *logger.Logger
}

func NewHandler(svc *notification.Service, log *logger.Logger) *Handler {
	return &Handler{Service: svc, Logger: log}
}

func (h *Handler) Register(r chi.Router, authn func(http.Handler) http.Handler) {
	r.Route("/api/notifications", func(r chi.Router) {
		r.Use(authn)
		r.Get("/", h.List)
		r.Put("/read", h.MarkAllRead)
		r.Put("/{notificationId}/read", h.MarkRead)
		r.Delete("/{notificationId}", h.Delete)
	})
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if auctionerr.CodeOf(err) == auctionerr.InternalError {
		h.Logger.Error("API", fmt.Sprintf("%s: %v", op, err))
	}
	utils.WriteError(w, err)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page, limit, err := utils.Pagination(r)
	if err != nil {
		h.fail(w, "ListNotifications", err)
		return
	}
	unreadOnly := r.URL.Query().Get("unread") == "true"

	result, err := h.Service.List(r.Context(), auth.UserID(r.Context()), unreadOnly, models.Page{Page: page, Limit: limit})
	if err != nil {
		h.fail(w, "ListNotifications", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "notifications retrieved", result)
}

func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	n, err := h.Service.MarkRead(r.Context(), chi.URLParam(r, "notificationId"), auth.UserID(r.Context()))
	if err != nil {
		h.fail(w, "MarkRead", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "notification marked as read", n)
}

func (h *Handler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	n, err := h.Service.MarkAllRead(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.fail(w, "MarkAllRead", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "notifications marked as read", map[string]int{"updated": n})
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.Delete(r.Context(), chi.URLParam(r, "notificationId"), auth.UserID(r.Context())); err != nil {
		h.fail(w, "DeleteNotification", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "notification deleted", nil)
}
