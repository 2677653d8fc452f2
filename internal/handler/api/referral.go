package api

import (
	"errors"
	"net/http"

	reqdto "loyalty-core/internal/handler/dto/request"
	resdto "loyalty-core/internal/handler/dto/response"
	"loyalty-core/internal/handler/httperr"
	"loyalty-core/internal/handler/middleware"
	"loyalty-core/internal/usecase/commands"

	"github.com/gin-gonic/gin"
)

type ReferralHandler struct {
	referralCommands commands.ReferralCommands
}

func NewReferralHandler(referralCommands commands.ReferralCommands) *ReferralHandler {
	return &ReferralHandler{
		referralCommands: referralCommands,
	}
}

// @Summary Create referral code
// @Description Create a shareable referral code owned by the current user
// @Tags referrals
// @Produce json
// @Security BearerAuth
// @Success 201 {object} resdto.ReferralCodeResponse
// @Failure 401 {object} httperr.Response
// @Failure 429 {object} httperr.Response
// @Router /referrals/codes [post]
func (h *ReferralHandler) CreateCode(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		httperr.AbortWithError(c, http.StatusInternalServerError, errMissingUserContext, "Internal server error", nil)
		return
	}

	result, err := h.referralCommands.CreateCode(c.Request.Context(), userID)
	if err != nil {
		switch {
		case errors.Is(err, commands.ErrRateLimited):
			httperr.AbortWithError(c, http.StatusTooManyRequests, err,
				"Too many referral requests, try again later", gin.H{"reason": "rate_limited"})
		default:
			httperr.AbortWithError(c, http.StatusInternalServerError, err, "Internal server error", nil)
		}
		return
	}

	c.JSON(http.StatusCreated, resdto.ReferralCodeResponse{Code: result.Code})
}

// @Summary Accept referral
// @Description Accept a referral code as the current user, crediting both parties
// @Tags referrals
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body reqdto.AcceptReferralRequest true "Referral code"
// @Success 200 {object} resdto.AcceptReferralResponse
// @Failure 400 {object} httperr.Response
// @Failure 401 {object} httperr.Response
// @Failure 404 {object} httperr.Response
// @Failure 422 {object} httperr.Response
// @Failure 429 {object} httperr.Response
// @Router /referrals/accept [post]
func (h *ReferralHandler) AcceptReferral(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		httperr.AbortWithError(c, http.StatusInternalServerError, errMissingUserContext, "Internal server error", nil)
		return
	}

	var req reqdto.AcceptReferralRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httperr.AbortWithError(c, http.StatusBadRequest, err, "Invalid request format", nil)
		return
	}

	result, err := h.referralCommands.AcceptReferral(c.Request.Context(), req.Code, userID)
	if err != nil {
		switch {
		case errors.Is(err, commands.ErrInvalidReferralCode):
			httperr.AbortWithError(c, http.StatusBadRequest, err, "Invalid referral code format", nil)
		case errors.Is(err, commands.ErrCodeNotFound):
			httperr.AbortWithError(c, http.StatusNotFound, err, "Referral code not found", nil)
		case errors.Is(err, commands.ErrSelfReferral):
			httperr.AbortWithError(c, http.StatusUnprocessableEntity, err,
				"Cannot accept your own referral code", gin.H{"reason": "self_referral"})
		case errors.Is(err, commands.ErrAlreadyReferred):
			httperr.AbortWithError(c, http.StatusUnprocessableEntity, err,
				"A referral has already been accepted for this account", gin.H{"reason": "already_referred"})
		case errors.Is(err, commands.ErrReceiverNotEligible):
			httperr.AbortWithError(c, http.StatusUnprocessableEntity, err,
				"Account is not eligible for a referral bonus", gin.H{"reason": "receiver_not_eligible"})
		case errors.Is(err, commands.ErrRateLimited):
			httperr.AbortWithError(c, http.StatusTooManyRequests, err,
				"Too many referral attempts, try again later", gin.H{"reason": "rate_limited"})
		default:
			httperr.AbortWithError(c, http.StatusInternalServerError, err, "Internal server error", nil)
		}
		return
	}

	c.JSON(http.StatusOK, resdto.FromAcceptReferralResult(result))
}
