package api

import (
	"net/http"

	resdto "loyalty-core/internal/handler/dto/response"
	"loyalty-core/internal/handler/httperr"
	"loyalty-core/internal/handler/middleware"
	"loyalty-core/internal/usecase/queries"

	"github.com/gin-gonic/gin"
)

type RewardHandler struct {
	rewardQueries  queries.RewardQueries
	balanceQueries queries.BalanceQueries
}

func NewRewardHandler(rewardQueries queries.RewardQueries, balanceQueries queries.BalanceQueries) *RewardHandler {
	return &RewardHandler{
		rewardQueries:  rewardQueries,
		balanceQueries: balanceQueries,
	}
}

// @Summary List rewards
// @Description List the active reward catalog
// @Tags rewards
// @Security BearerAuth
// @Produce json
// @Success 200 {array} resdto.RewardResponse
// @Failure 401 {object} httperr.Response
// @Router /rewards [get]
func (h *RewardHandler) ListRewards(c *gin.Context) {
	views, err := h.rewardQueries.ListActive(c.Request.Context())
	if err != nil {
		httperr.AbortWithError(c, http.StatusInternalServerError, err, "Internal server error", nil)
		return
	}

	response := make([]*resdto.RewardResponse, len(views))
	for i, v := range views {
		response[i] = resdto.FromRewardView(v)
	}
	c.JSON(http.StatusOK, response)
}

// @Summary Get point balance
// @Description Get the current user's committed point balance
// @Tags balance
// @Security BearerAuth
// @Produce json
// @Success 200 {object} resdto.BalanceResponse
// @Failure 401 {object} httperr.Response
// @Router /me/balance [get]
func (h *RewardHandler) GetBalance(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		httperr.AbortWithError(c, http.StatusInternalServerError, errMissingUserContext, "Internal server error", nil)
		return
	}

	view, err := h.balanceQueries.GetForUser(c.Request.Context(), userID)
	if err != nil {
		httperr.AbortWithError(c, http.StatusInternalServerError, err, "Internal server error", nil)
		return
	}

	c.JSON(http.StatusOK, resdto.BalanceResponse{
		UserID:  view.UserID,
		Balance: view.Balance,
	})
}
