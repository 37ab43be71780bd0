package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"callwave/internal/audit"
	"callwave/internal/auth"
	"callwave/internal/campaigns"
	"callwave/internal/contacts"
	"callwave/internal/interactions"
	"callwave/internal/queue"
	"callwave/internal/reporting"
	"callwave/internal/scenario"
	"callwave/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth         *auth.Manager
	Campaigns    *campaigns.Service
	Queue        queue.Store
	Contacts     contacts.Store
	Interactions interactions.Store
	Scenarios    *scenario.Library
	Reports      *reporting.Service
	// Audit is optional; when set, control actions are recorded best-effort.
	Audit *audit.Service

	// MaxAttempts is the per-item redial budget applied at enqueue time.
	MaxAttempts int
}

func (h Handlers) auditCampaign(c *gin.Context, campaignID, action string) {
	if h.Audit == nil {
		return
	}
	operatorID, _ := auth.OperatorID(c.Request.Context())
	role, _ := auth.Role(c.Request.Context())
	if err := h.Audit.LogCampaignControl(c.Request.Context(), operatorID, role, c.ClientIP(), campaignID, action); err != nil {
		logger.FromGin(c).Warn("audit append failed", "action", action, "error", err)
	}
}

// --- Auth ---

type tokenRequest struct {
	OperatorID string `json:"operator_id"`
	Role       string `json:"role"`
}

// IssueToken signs an operator token.
//
// NOTE: This is a skeleton-only endpoint. Real deployments must validate
// operator credentials before issuing.
func (h Handlers) IssueToken(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.OperatorID == "" || req.Role == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "operator_id, role required"})
		return
	}
	tok, err := h.Auth.Issue(time.Now(), req.OperatorID, req.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": tok})
}

// --- Campaigns ---

func (h Handlers) CreateCampaign(c *gin.Context) {
	var req campaigns.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if _, err := h.Scenarios.Get(req.Scenario); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error":     "unknown scenario",
			"available": h.Scenarios.Names(),
		})
		return
	}
	camp, err := h.Campaigns.Create(c.Request.Context(), req)
	if err != nil {
		writeCampaignError(c, err)
		return
	}
	c.JSON(http.StatusCreated, camp)
}

func (h Handlers) GetCampaign(c *gin.Context) {
	camp, err := h.Campaigns.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeCampaignError(c, err)
		return
	}
	c.JSON(http.StatusOK, camp)
}

func (h Handlers) LaunchCampaign(c *gin.Context) {
	h.transition(c, "launch", h.Campaigns.Launch)
}

func (h Handlers) PauseCampaign(c *gin.Context) {
	h.transition(c, "pause", h.Campaigns.Pause)
}

func (h Handlers) ResumeCampaign(c *gin.Context) {
	h.transition(c, "resume", h.Campaigns.Resume)
}

func (h Handlers) StopCampaign(c *gin.Context) {
	h.transition(c, "stop", h.Campaigns.Stop)
}

func (h Handlers) transition(c *gin.Context, action string, op func(ctx context.Context, id string) error) {
	id := c.Param("id")
	if err := op(c.Request.Context(), id); err != nil {
		writeCampaignError(c, err)
		return
	}
	h.auditCampaign(c, id, action)
	camp, err := h.Campaigns.Get(c.Request.Context(), id)
	if err != nil {
		writeCampaignError(c, err)
		return
	}
	c.JSON(http.StatusOK, camp)
}

// CampaignStats reports reconciled counters, live occupancy, and derived rates.
func (h Handlers) CampaignStats(c *gin.Context) {
	rep, err := h.Reports.CampaignReport(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeCampaignError(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

// --- Contacts / queue ---

type enqueueContact struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
	Email     string `json:"email"`
	Company   string `json:"company"`
	Priority  int    `json:"priority"`
}

type enqueueRequest struct {
	Contacts []enqueueContact `json:"contacts"`
}

// EnqueueContacts imports contacts into a campaign: each one is upserted with
// status Queued and gets a pending queue item.
func (h Handlers) EnqueueContacts(c *gin.Context) {
	id := c.Param("id")
	camp, err := h.Campaigns.Get(c.Request.Context(), id)
	if err != nil {
		writeCampaignError(c, err)
		return
	}

	var req enqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if len(req.Contacts) == 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "contacts required"})
		return
	}
	for _, ct := range req.Contacts {
		if strings.TrimSpace(ct.Phone) == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "every contact needs a phone"})
			return
		}
	}

	ctx := c.Request.Context()
	items := make([]queue.Item, 0, len(req.Contacts))
	for _, ct := range req.Contacts {
		phone := strings.TrimSpace(ct.Phone)
		err := h.Contacts.Upsert(ctx, contacts.Contact{
			ID:        uuid.NewString(),
			FirstName: ct.FirstName,
			LastName:  ct.LastName,
			Phone:     phone,
			Email:     ct.Email,
			Company:   ct.Company,
			Status:    contacts.StatusQueued,
			Priority:  ct.Priority,
		})
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "contact import failed"})
			return
		}
		items = append(items, queue.Item{
			ID:          uuid.NewString(),
			CampaignID:  camp.ID,
			Phone:       phone,
			Scenario:    camp.Scenario,
			Status:      queue.StatusPending,
			MaxAttempts: h.MaxAttempts,
			Priority:    ct.Priority,
		})
	}
	if err := h.Queue.EnqueueBatch(ctx, items); err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "enqueue failed"})
		return
	}
	enqueued := len(items)

	if err := h.Campaigns.AddTotal(ctx, camp.ID, enqueued); err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "campaign update failed"})
		return
	}
	if h.Audit != nil {
		operatorID, _ := auth.OperatorID(ctx)
		role, _ := auth.Role(ctx)
		meta := fmt.Sprintf(`{"count":%d}`, enqueued)
		if err := h.Audit.LogContactImport(ctx, operatorID, role, c.ClientIP(), camp.ID, meta); err != nil {
			logger.FromGin(c).Warn("audit append failed", "action", "contact_import", "error", err)
		}
	}
	c.JSON(http.StatusOK, gin.H{"enqueued": enqueued})
}

// --- Calls ---

func (h Handlers) CallInteractions(c *gin.Context) {
	list, err := h.Interactions.ListByCall(c.Request.Context(), c.Param("call_id"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "interaction lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"interactions": list})
}

// --- Scenarios ---

func (h Handlers) ListScenarios(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"scenarios": h.Scenarios.Names()})
}

func writeCampaignError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, campaigns.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "campaign not found"})
	case errors.Is(err, campaigns.ErrBadTransition):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "invalid campaign state"})
	case errors.Is(err, campaigns.ErrInvalidArgument):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid argument"})
	default:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
