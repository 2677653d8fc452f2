//go:build unit

package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"loyalty-core/internal/handler/api"
	reqdto "loyalty-core/internal/handler/dto/request"
	"loyalty-core/internal/usecase/commands"
	"loyalty-core/internal/usecase/queries"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
)

// stubRedemptionCommands scripts each call's outcome.
type stubRedemptionCommands struct {
	requestResult *commands.RequestRedemptionResult
	requestErr    error
	consumeErr    error
	lastRequest   reqdto.CreateRedemptionRequest
	lastKey       uuid.UUID
}

func (s *stubRedemptionCommands) RequestRedemption(_ context.Context, req reqdto.CreateRedemptionRequest, _ uuid.UUID, key uuid.UUID) (*commands.RequestRedemptionResult, error) {
	s.lastRequest = req
	s.lastKey = key
	return s.requestResult, s.requestErr
}

func (s *stubRedemptionCommands) ConsumeRedemption(context.Context, uuid.UUID) error {
	return s.consumeErr
}

type stubRefundCommands struct {
	reportErr error
}

func (s *stubRefundCommands) ExpireAndRefund(context.Context, uuid.UUID) (bool, error) {
	return false, nil
}
func (s *stubRefundCommands) ReportExpiredLocally(context.Context, uuid.UUID) error {
	return s.reportErr
}
func (s *stubRefundCommands) SweepOverdue(context.Context) (int, error) { return 0, nil }
func (s *stubRefundCommands) SweepUser(context.Context, uuid.UUID) (int, error) {
	return 0, nil
}

type stubRedemptionQueries struct {
	views []*queries.RedemptionView
	err   error
}

func (s *stubRedemptionQueries) GetByID(context.Context, uuid.UUID) (*queries.RedemptionView, error) {
	if len(s.views) > 0 {
		return s.views[0], s.err
	}
	return nil, queries.ErrRedemptionNotFound
}

func (s *stubRedemptionQueries) ActiveForUser(context.Context, uuid.UUID) ([]*queries.RedemptionView, error) {
	return s.views, s.err
}

type RedemptionHandlerTestSuite struct {
	suite.Suite
	router   *gin.Engine
	commands *stubRedemptionCommands
	refunds  *stubRefundCommands
	views    *stubRedemptionQueries
	userID   uuid.UUID
}

func (s *RedemptionHandlerTestSuite) SetupTest() {
	gin.SetMode(gin.TestMode)
	s.router = gin.New()
	s.commands = &stubRedemptionCommands{}
	s.refunds = &stubRefundCommands{}
	s.views = &stubRedemptionQueries{}
	s.userID = uuid.New()

	handler := api.NewRedemptionHandler(s.commands, s.refunds, s.views, nil)

	authed := func(h gin.HandlerFunc) gin.HandlerFunc {
		return func(c *gin.Context) {
			c.Set("user_id", s.userID)
			h(c)
		}
	}
	s.router.POST("/redemptions", authed(handler.CreateRedemption))
	s.router.GET("/redemptions", authed(handler.ListActiveRedemptions))
	s.router.POST("/redemptions/:id/consume", authed(handler.ConsumeRedemption))
	s.router.POST("/redemptions/:id/expire", authed(handler.ReportExpired))
}

func TestRedemptionHandlerSuite(t *testing.T) {
	suite.Run(t, new(RedemptionHandlerTestSuite))
}

func (s *RedemptionHandlerTestSuite) postRedemption(body string, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/redemptions", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *RedemptionHandlerTestSuite) sampleView() *queries.RedemptionView {
	return &queries.RedemptionView{
		ID:          uuid.New(),
		UserID:      s.userID,
		RewardID:    uuid.New(),
		RewardName:  "free dessert",
		Code:        "ABCD2345",
		PointsValue: 120,
		RedeemedAt:  time.Now(),
		ExpiresAt:   time.Now().Add(15 * time.Minute),
	}
}

func (s *RedemptionHandlerTestSuite) TestCreateRedemption() {
	rewardID := uuid.New()
	body := `{"reward_id":"` + rewardID.String() + `"}`

	s.Run("success: returns 201 with the claim", func() {
		s.commands.requestResult = &commands.RequestRedemptionResult{Redemption: s.sampleView()}
		s.commands.requestErr = nil

		w := s.postRedemption(body, uuid.NewString())
		s.Equal(http.StatusCreated, w.Code)

		var resp map[string]any
		s.NoError(json.Unmarshal(w.Body.Bytes(), &resp))
		s.Equal("ABCD2345", resp["code"])
		s.Equal(rewardID, s.commands.lastRequest.RewardID)
	})

	s.Run("replayed request returns 200", func() {
		s.commands.requestResult = &commands.RequestRedemptionResult{Redemption: s.sampleView(), IsReplayed: true}
		s.commands.requestErr = nil

		w := s.postRedemption(body, uuid.NewString())
		s.Equal(http.StatusOK, w.Code)
	})

	s.Run("missing idempotency key returns 400", func() {
		w := s.postRedemption(body, "")
		s.Equal(http.StatusBadRequest, w.Code)
	})

	s.Run("malformed idempotency key returns 400", func() {
		w := s.postRedemption(body, "not-a-uuid")
		s.Equal(http.StatusBadRequest, w.Code)
	})

	s.Run("insufficient balance returns 422 with reason", func() {
		s.commands.requestResult = nil
		s.commands.requestErr = commands.ErrInsufficientBalance

		w := s.postRedemption(body, uuid.NewString())
		s.Equal(http.StatusUnprocessableEntity, w.Code)

		var resp struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
			Detail map[string]any `json:"detail"`
		}
		s.NoError(json.Unmarshal(w.Body.Bytes(), &resp))
		s.Equal("Insufficient point balance", resp.Error.Message)
		s.Equal("insufficient_balance", resp.Detail["reason"])
	})

	s.Run("unknown reward returns 404", func() {
		s.commands.requestErr = commands.ErrRewardNotFound

		w := s.postRedemption(body, uuid.NewString())
		s.Equal(http.StatusNotFound, w.Code)
	})

	s.Run("conflicting duplicate returns 409", func() {
		s.commands.requestErr = commands.ErrDuplicateRequest

		w := s.postRedemption(body, uuid.NewString())
		s.Equal(http.StatusConflict, w.Code)
	})
}

func (s *RedemptionHandlerTestSuite) TestListActiveRedemptions() {
	s.views.views = []*queries.RedemptionView{s.sampleView(), s.sampleView()}

	req := httptest.NewRequest(http.MethodGet, "/redemptions", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	s.Equal(http.StatusOK, w.Code)

	var resp []map[string]any
	s.NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	s.Len(resp, 2)
}

func (s *RedemptionHandlerTestSuite) TestConsumeRedemption() {
	s.Run("success returns 204", func() {
		s.commands.consumeErr = nil

		req := httptest.NewRequest(http.MethodPost, "/redemptions/"+uuid.NewString()+"/consume", nil)
		w := httptest.NewRecorder()
		s.router.ServeHTTP(w, req)
		s.Equal(http.StatusNoContent, w.Code)
	})

	s.Run("terminal claim returns 409", func() {
		s.commands.consumeErr = commands.ErrAlreadyTerminal

		req := httptest.NewRequest(http.MethodPost, "/redemptions/"+uuid.NewString()+"/consume", nil)
		w := httptest.NewRecorder()
		s.router.ServeHTTP(w, req)
		s.Equal(http.StatusConflict, w.Code)
	})

	s.Run("invalid id returns 400", func() {
		req := httptest.NewRequest(http.MethodPost, "/redemptions/oops/consume", nil)
		w := httptest.NewRecorder()
		s.router.ServeHTTP(w, req)
		s.Equal(http.StatusBadRequest, w.Code)
	})
}

func (s *RedemptionHandlerTestSuite) TestReportExpired() {
	// 204 regardless of whether the hint actually triggered a refund.
	req := httptest.NewRequest(http.MethodPost, "/redemptions/"+uuid.NewString()+"/expire", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	s.Equal(http.StatusNoContent, w.Code)
}
