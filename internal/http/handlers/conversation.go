package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"shoptalk/internal/repo"
	"shoptalk/pkg/models"
)

// TenantHeader scopes API requests to one merchant
const TenantHeader = "X-Tenant-ID"

type ConversationHandler struct {
	conversations *repo.ConversationRepository
	messages      *repo.MessageRepository
}

func NewConversationHandler(conversations *repo.ConversationRepository, messages *repo.MessageRepository) *ConversationHandler {
	return &ConversationHandler{conversations: conversations, messages: messages}
}

type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active paused resolved archived"`
}

// List returns the tenant's conversations, most recent activity first
func (h *ConversationHandler) List(c echo.Context) error {
	tenantID, err := tenantFromRequest(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	limit, offset := paginationParams(c)

	campaign := c.QueryParam("campaign_id")
	var result models.PaginationResult[models.Conversation]
	if campaign != "" {
		campaignID, perr := uuid.Parse(campaign)
		if perr != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid campaign_id"})
		}
		result, err = h.conversations.ListByCampaign(tenantID, campaignID, limit, offset)
	} else {
		result, err = h.conversations.ListByTenant(tenantID, limit, offset)
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to list conversations"})
	}
	return c.JSON(http.StatusOK, result)
}

// GetByID returns one conversation
func (h *ConversationHandler) GetByID(c echo.Context) error {
	tenantID, err := tenantFromRequest(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid conversation id"})
	}

	conversation, err := h.conversations.GetByID(tenantID, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "conversation not found"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to load conversation"})
	}
	return c.JSON(http.StatusOK, conversation)
}

// ListMessages returns the conversation's message log in insertion order
func (h *ConversationHandler) ListMessages(c echo.Context) error {
	tenantID, err := tenantFromRequest(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid conversation id"})
	}
	limit, offset := paginationParams(c)

	if _, err := h.conversations.GetByID(tenantID, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "conversation not found"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to load conversation"})
	}

	result, err := h.messages.ListByConversation(tenantID, id, limit, offset)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to list messages"})
	}
	return c.JSON(http.StatusOK, result)
}

// UpdateStatus moves the conversation between active/paused/resolved/archived
func (h *ConversationHandler) UpdateStatus(c echo.Context) error {
	tenantID, err := tenantFromRequest(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid conversation id"})
	}

	var req UpdateStatusRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	if err := h.conversations.UpdateStatus(tenantID, id, req.Status); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "conversation not found"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to update status"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": req.Status})
}

func tenantFromRequest(c echo.Context) (uuid.UUID, error) {
	raw := c.Request().Header.Get(TenantHeader)
	if raw == "" {
		return uuid.Nil, errors.New("missing " + TenantHeader + " header")
	}
	tenantID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, errors.New("invalid " + TenantHeader + " header")
	}
	return tenantID, nil
}

func paginationParams(c echo.Context) (limit, offset int) {
	limit = 20
	if v, err := strconv.Atoi(c.QueryParam("limit")); err == nil && v > 0 && v <= 100 {
		limit = v
	}
	page := 1
	if v, err := strconv.Atoi(c.QueryParam("page")); err == nil && v > 0 {
		page = v
	}
	return limit, (page - 1) * limit
}
