package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"loyalty-core/internal/infra/feed"

	reqdto "loyalty-core/internal/handler/dto/request"
	resdto "loyalty-core/internal/handler/dto/response"
	"loyalty-core/internal/handler/httperr"
	"loyalty-core/internal/handler/middleware"
	"loyalty-core/internal/usecase/commands"
	"loyalty-core/internal/usecase/queries"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

var (
	errMissingUserContext     = errors.New("user id missing from context")
	errIdempotencyKeyRequired = errors.New("Idempotency-Key header required")
)

// streamHeartbeat keeps idle SSE connections alive through proxies.
const streamHeartbeat = 30 * time.Second

type RedemptionHandler struct {
	redemptionCommands commands.RedemptionCommands
	refundCommands     commands.RefundCommands
	redemptionQueries  queries.RedemptionQueries
	listener           *feed.Listener
}

func NewRedemptionHandler(
	redemptionCommands commands.RedemptionCommands,
	refundCommands commands.RefundCommands,
	redemptionQueries queries.RedemptionQueries,
	listener *feed.Listener,
) *RedemptionHandler {
	return &RedemptionHandler{
		redemptionCommands: redemptionCommands,
		refundCommands:     refundCommands,
		redemptionQueries:  redemptionQueries,
		listener:           listener,
	}
}

// @Summary Request redemption
// @Description Spend points on a reward and receive a time-limited claim code
// @Tags redemptions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param Idempotency-Key header string true "Idempotency key for duplicate prevention"
// @Param request body reqdto.CreateRedemptionRequest true "Redemption request"
// @Success 201 {object} resdto.RedemptionResponse
// @Failure 400 {object} httperr.Response
// @Failure 401 {object} httperr.Response
// @Failure 404 {object} httperr.Response
// @Failure 409 {object} httperr.Response
// @Failure 422 {object} httperr.Response
// @Router /redemptions [post]
func (h *RedemptionHandler) CreateRedemption(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		httperr.AbortWithError(c, http.StatusInternalServerError, errMissingUserContext, "Internal server error", nil)
		return
	}

	idempotencyKey, err := getIdempotencyKey(c)
	if err != nil {
		httperr.AbortWithError(c, http.StatusBadRequest, err, err.Error(), nil)
		return
	}

	var req reqdto.CreateRedemptionRequest
	if bindErr := c.ShouldBindJSON(&req); bindErr != nil {
		httperr.AbortWithError(c, http.StatusBadRequest, bindErr, "Invalid request format", nil)
		return
	}

	result, err := h.redemptionCommands.RequestRedemption(c.Request.Context(), req, userID, idempotencyKey)
	if err != nil {
		switch {
		case errors.Is(err, commands.ErrRewardNotFound):
			httperr.AbortWithError(c, http.StatusNotFound, err, "Reward not found", nil)
		case errors.Is(err, commands.ErrRewardInactive):
			httperr.AbortWithError(c, http.StatusUnprocessableEntity, err,
				"Reward is not available", gin.H{"reason": "reward_inactive"})
		case errors.Is(err, commands.ErrInsufficientBalance):
			httperr.AbortWithError(c, http.StatusUnprocessableEntity, err,
				"Insufficient point balance", gin.H{"reason": "insufficient_balance"})
		case errors.Is(err, commands.ErrDuplicateRequest):
			httperr.AbortWithError(c, http.StatusConflict, err, "Duplicate request with different parameters", nil)
		case errors.Is(err, commands.ErrIdempotencyInProgress):
			httperr.AbortWithError(c, http.StatusConflict, err, "Request is currently being processed", nil)
		default:
			httperr.AbortWithError(c, http.StatusInternalServerError, err, "Internal server error", nil)
		}
		return
	}

	status := http.StatusCreated
	if result.IsReplayed {
		status = http.StatusOK
	}
	c.JSON(status, resdto.FromRedemptionView(result.Redemption))
}

// @Summary List active redemptions
// @Description List the current user's active (unused, unexpired) redemptions
// @Tags redemptions
// @Produce json
// @Security BearerAuth
// @Success 200 {array} resdto.RedemptionResponse
// @Failure 401 {object} httperr.Response
// @Router /redemptions [get]
func (h *RedemptionHandler) ListActiveRedemptions(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		httperr.AbortWithError(c, http.StatusInternalServerError, errMissingUserContext, "Internal server error", nil)
		return
	}

	views, err := h.redemptionQueries.ActiveForUser(c.Request.Context(), userID)
	if err != nil {
		httperr.AbortWithError(c, http.StatusInternalServerError, err, "Internal server error", nil)
		return
	}

	c.JSON(http.StatusOK, resdto.FromRedemptionViews(views))
}

// @Summary Consume redemption
// @Description Mark a claim code as used at the point of sale (staff only)
// @Tags redemptions
// @Security BearerAuth
// @Param id path string true "Redemption ID"
// @Success 204 "No Content"
// @Failure 401 {object} httperr.Response
// @Failure 403 {object} httperr.Response
// @Failure 404 {object} httperr.Response
// @Failure 409 {object} httperr.Response
// @Router /redemptions/{id}/consume [post]
func (h *RedemptionHandler) ConsumeRedemption(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httperr.AbortWithError(c, http.StatusBadRequest, err, "Invalid redemption ID format", nil)
		return
	}

	if err := h.redemptionCommands.ConsumeRedemption(c.Request.Context(), id); err != nil {
		switch {
		case errors.Is(err, commands.ErrRedemptionNotFound):
			httperr.AbortWithError(c, http.StatusNotFound, err, "Redemption not found", nil)
		case errors.Is(err, commands.ErrAlreadyTerminal):
			httperr.AbortWithError(c, http.StatusConflict, err, "Redemption already used or expired", nil)
		default:
			httperr.AbortWithError(c, http.StatusInternalServerError, err, "Internal server error", nil)
		}
		return
	}

	c.Status(http.StatusNoContent)
}

// @Summary Report local expiry
// @Description Client timer hint that a redemption has expired; the server re-verifies against the stored deadline
// @Tags redemptions
// @Security BearerAuth
// @Param id path string true "Redemption ID"
// @Success 204 "No Content"
// @Failure 400 {object} httperr.Response
// @Failure 401 {object} httperr.Response
// @Router /redemptions/{id}/expire [post]
func (h *RedemptionHandler) ReportExpired(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httperr.AbortWithError(c, http.StatusBadRequest, err, "Invalid redemption ID format", nil)
		return
	}

	// Always 204: the hint carries no authority, and whether the refund
	// actually ran is not the client's concern.
	if err := h.refundCommands.ReportExpiredLocally(c.Request.Context(), id); err != nil {
		httperr.AbortWithError(c, http.StatusInternalServerError, err, "Internal server error", nil)
		return
	}

	c.Status(http.StatusNoContent)
}

// @Summary Stream redemption changes
// @Description Server-sent events for the current user's redemption changes. Clients re-query the active set on every event.
// @Tags redemptions
// @Produce text/event-stream
// @Security BearerAuth
// @Success 200 {string} string "event stream"
// @Failure 401 {object} httperr.Response
// @Router /redemptions/stream [get]
func (h *RedemptionHandler) StreamRedemptions(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		httperr.AbortWithError(c, http.StatusInternalServerError, errMissingUserContext, "Internal server error", nil)
		return
	}

	events, cancel := h.listener.Subscribe(userID)
	defer cancel()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	// Initial snapshot so a reconnecting client does not miss transitions
	// that happened while it was away.
	views, err := h.redemptionQueries.ActiveForUser(c.Request.Context(), userID)
	if err != nil {
		httperr.AbortWithError(c, http.StatusInternalServerError, err, "Internal server error", nil)
		return
	}
	c.SSEvent("snapshot", resdto.FromRedemptionViews(views))
	c.Writer.Flush()

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case ev, open := <-events:
			if !open {
				return false
			}
			c.SSEvent("change", resdto.RedemptionEventResponse{
				RedemptionID: ev.RedemptionID,
				Event:        ev.Event,
			})
			return true
		case <-heartbeat.C:
			c.SSEvent("heartbeat", time.Now().Unix())
			return true
		}
	})
}

func getIdempotencyKey(c *gin.Context) (uuid.UUID, error) {
	keyStr := c.GetHeader("Idempotency-Key")
	if keyStr == "" {
		return uuid.Nil, errIdempotencyKeyRequired
	}
	key, err := uuid.Parse(keyStr)
	if err != nil {
		return uuid.Nil, errors.New("Idempotency-Key must be a UUID")
	}
	return key, nil
}
