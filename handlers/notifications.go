package handlers

import (
	"net/http"
	"strconv"

	"github.com/aj9599/raas-platform/models"
	"github.com/aj9599/raas-platform/services"
	"go.uber.org/zap"
)

type NotificationHandler struct {
	notifications *services.NotificationService
	hub           *services.NotificationHub
	logger        *zap.Logger
}

func NewNotificationHandler(notifications *services.NotificationService, hub *services.NotificationHub, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{notifications: notifications, hub: hub, logger: logger}
}

type NotificationList struct {
	Items  []models.Notification `json:"items"`
	Unread int                   `json:"unread"`
}

func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	accountID := identity(r).AccountID
	q := r.URL.Query()
	unreadOnly, _ := strconv.ParseBool(q.Get("unread"))
	limit, _ := strconv.Atoi(q.Get("limit"))

	items, err := h.notifications.List(r.Context(), accountID, unreadOnly, limit)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	unread, err := h.notifications.UnreadCount(r.Context(), accountID)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, NotificationList{Items: items, Unread: unread})
}

func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return
	}
	if err := h.notifications.MarkRead(r.Context(), identity(r).AccountID, id); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	n, err := h.notifications.MarkAllRead(r.Context(), identity(r).AccountID)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updated": n})
}

// Stream upgrades to a websocket that pushes new notifications.
func (h *NotificationHandler) Stream(w http.ResponseWriter, r *http.Request) {
	h.hub.ServeWS(w, r, identity(r).AccountID)
}
