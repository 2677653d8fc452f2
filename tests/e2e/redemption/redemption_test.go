//go:build e2e

package redemption_test

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"loyalty-core/internal/domain/user"
	"loyalty-core/internal/handler/dto/request"
	"loyalty-core/internal/handler/dto/response"
	"loyalty-core/tests/common/authtest"
	"loyalty-core/tests/common/dbtest"
	"loyalty-core/tests/common/httptest"
	"loyalty-core/tests/e2e"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"golang.org/x/sync/errgroup"
)

const (
	redemptionsURL = "/api/redemptions"
	balanceURL     = "/api/me/balance"
)

type redemptionSuite struct {
	e2e.SharedSuite
}

func TestRedemptionSuite(t *testing.T) {
	t.Parallel()
	suite.Run(t, new(redemptionSuite))
}

func (s *redemptionSuite) createRedemption(t *testing.T, token string, rewardID uuid.UUID, key uuid.UUID) (*response.RedemptionResponse, int) {
	t.Helper()

	w := httptest.PerformRequestWithHeaders(t, s.Router, http.MethodPost, redemptionsURL,
		request.CreateRedemptionRequest{RewardID: rewardID}, token,
		map[string]string{"Idempotency-Key": key.String()})
	if w.Code != http.StatusCreated && w.Code != http.StatusOK {
		return nil, w.Code
	}

	var resp response.RedemptionResponse
	httptest.DecodeResponseBody(t, w.Body, &resp)
	return &resp, w.Code
}

func (s *redemptionSuite) TestRequestRedemption() {
	s.Run("redeeming debits points and returns a claim", func() {
		t := s.T()
		userID, token := authtest.CreateAndLogin(t, s.DB, s.Router, "alice@example.com", string(user.RoleCustomer))
		dbtest.SetBalance(t, s.DB, userID, 450)

		resp, code := s.createRedemption(t, token, dbtest.RewardFreeCoffeeID, uuid.New())
		require.Equal(t, http.StatusCreated, code)
		require.NotEmpty(t, resp.Code)
		require.WithinDuration(t, resp.RedeemedAt.Add(15*time.Minute), resp.ExpiresAt, time.Second)

		expected := &response.RedemptionResponse{
			UserID:      userID,
			RewardID:    dbtest.RewardFreeCoffeeID,
			RewardName:  "Free Coffee",
			PointsValue: 120,
		}
		opts := []cmp.Option{
			cmpopts.IgnoreFields(response.RedemptionResponse{}, "ID", "Code", "RedeemedAt", "ExpiresAt"),
		}
		if diff := cmp.Diff(expected, resp, opts...); diff != "" {
			t.Errorf("Redemption response mismatch (-want +got):\n%s", diff)
		}

		require.Equal(t, int64(330), dbtest.GetBalance(t, s.DB, userID))

		var balance response.BalanceResponse
		w := httptest.PerformRequest(t, s.Router, http.MethodGet, balanceURL, nil, token)
		httptest.AssertSuccessResponse(t, w, http.StatusOK, &balance)
		require.Equal(t, int64(330), balance.Balance)
	})

	s.Run("insufficient balance leaves no trace", func() {
		t := s.T()
		userID, token := authtest.CreateAndLogin(t, s.DB, s.Router, "alice@example.com", string(user.RoleCustomer))
		dbtest.SetBalance(t, s.DB, userID, 100)

		_, code := s.createRedemption(t, token, dbtest.RewardFreeCoffeeID, uuid.New())
		require.Equal(t, http.StatusUnprocessableEntity, code)
		require.Equal(t, int64(100), dbtest.GetBalance(t, s.DB, userID))

		var active []*response.RedemptionResponse
		w := httptest.PerformRequest(t, s.Router, http.MethodGet, redemptionsURL, nil, token)
		httptest.AssertSuccessResponse(t, w, http.StatusOK, &active)
		require.Empty(t, active)
	})

	s.Run("unknown reward is a 404", func() {
		t := s.T()
		userID, token := authtest.CreateAndLogin(t, s.DB, s.Router, "alice@example.com", string(user.RoleCustomer))
		dbtest.SetBalance(t, s.DB, userID, 450)

		_, code := s.createRedemption(t, token, uuid.New(), uuid.New())
		require.Equal(t, http.StatusNotFound, code)
	})

	s.Run("inactive reward is rejected", func() {
		t := s.T()
		userID, token := authtest.CreateAndLogin(t, s.DB, s.Router, "alice@example.com", string(user.RoleCustomer))
		dbtest.SetBalance(t, s.DB, userID, 450)

		_, code := s.createRedemption(t, token, dbtest.RewardRetiredID, uuid.New())
		require.Equal(t, http.StatusUnprocessableEntity, code)
		require.Equal(t, int64(450), dbtest.GetBalance(t, s.DB, userID))
	})

	s.Run("replay with the same key does not debit twice", func() {
		t := s.T()
		userID, token := authtest.CreateAndLogin(t, s.DB, s.Router, "alice@example.com", string(user.RoleCustomer))
		dbtest.SetBalance(t, s.DB, userID, 450)
		key := uuid.New()

		first, code := s.createRedemption(t, token, dbtest.RewardFreeCoffeeID, key)
		require.Equal(t, http.StatusCreated, code)

		second, code := s.createRedemption(t, token, dbtest.RewardFreeCoffeeID, key)
		require.Equal(t, http.StatusOK, code)
		require.Equal(t, first.ID, second.ID)
		require.Equal(t, first.Code, second.Code)

		require.Equal(t, int64(330), dbtest.GetBalance(t, s.DB, userID))
	})

	s.Run("same key with a different payload conflicts", func() {
		t := s.T()
		userID, token := authtest.CreateAndLogin(t, s.DB, s.Router, "alice@example.com", string(user.RoleCustomer))
		dbtest.SetBalance(t, s.DB, userID, 450)
		key := uuid.New()

		_, code := s.createRedemption(t, token, dbtest.RewardFreeCoffeeID, key)
		require.Equal(t, http.StatusCreated, code)

		_, code = s.createRedemption(t, token, dbtest.RewardFreeDessertID, key)
		require.Equal(t, http.StatusConflict, code)
		require.Equal(t, int64(330), dbtest.GetBalance(t, s.DB, userID))
	})

	s.Run("concurrent requests against one redemption's worth of points pick a single winner", func() {
		t := s.T()
		userID, token := authtest.CreateAndLogin(t, s.DB, s.Router, "alice@example.com", string(user.RoleCustomer))
		dbtest.SetBalance(t, s.DB, userID, 120)

		var created, rejected atomic.Int32
		g, _ := errgroup.WithContext(context.Background())
		for i := 0; i < 8; i++ {
			g.Go(func() error {
				_, code := s.createRedemption(t, token, dbtest.RewardFreeCoffeeID, uuid.New())
				switch code {
				case http.StatusCreated:
					created.Add(1)
				case http.StatusUnprocessableEntity:
					rejected.Add(1)
				}
				return nil
			})
		}
		require.NoError(t, g.Wait())

		require.Equal(t, int32(1), created.Load(), "exactly one request should win the balance")
		require.Equal(t, int32(7), rejected.Load())
		require.Equal(t, int64(0), dbtest.GetBalance(t, s.DB, userID))
	})
}

func (s *redemptionSuite) TestConsumeRedemption() {
	s.Run("staff consumes an active claim exactly once", func() {
		t := s.T()
		userID, token := authtest.CreateAndLogin(t, s.DB, s.Router, "alice@example.com", string(user.RoleCustomer))
		_, staffToken := authtest.CreateAndLogin(t, s.DB, s.Router, "staff@example.com", string(user.RoleStaff))
		dbtest.SetBalance(t, s.DB, userID, 450)

		resp, code := s.createRedemption(t, token, dbtest.RewardFreeCoffeeID, uuid.New())
		require.Equal(t, http.StatusCreated, code)

		w := httptest.PerformRequest(t, s.Router, http.MethodPost, redemptionsURL+"/"+resp.ID.String()+"/consume", nil, staffToken)
		require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

		// A consumed claim is terminal
		w = httptest.PerformRequest(t, s.Router, http.MethodPost, redemptionsURL+"/"+resp.ID.String()+"/consume", nil, staffToken)
		require.Equal(t, http.StatusConflict, w.Code)

		// No refund: the points were spent
		require.Equal(t, int64(330), dbtest.GetBalance(t, s.DB, userID))
	})

	s.Run("customers may not consume claims", func() {
		t := s.T()
		userID, token := authtest.CreateAndLogin(t, s.DB, s.Router, "alice@example.com", string(user.RoleCustomer))
		dbtest.SetBalance(t, s.DB, userID, 450)

		resp, code := s.createRedemption(t, token, dbtest.RewardFreeCoffeeID, uuid.New())
		require.Equal(t, http.StatusCreated, code)

		w := httptest.PerformRequest(t, s.Router, http.MethodPost, redemptionsURL+"/"+resp.ID.String()+"/consume", nil, token)
		require.Equal(t, http.StatusForbidden, w.Code)
	})

	s.Run("consuming an unknown claim is a 404", func() {
		t := s.T()
		_, staffToken := authtest.CreateAndLogin(t, s.DB, s.Router, "staff@example.com", string(user.RoleStaff))

		w := httptest.PerformRequest(t, s.Router, http.MethodPost, redemptionsURL+"/"+uuid.NewString()+"/consume", nil, staffToken)
		require.Equal(t, http.StatusNotFound, w.Code)
	})
}

func (s *redemptionSuite) TestExpiryRefund() {
	s.Run("overdue redemption is refunded exactly once under concurrent triggers", func() {
		t := s.T()
		userID, token := authtest.CreateAndLogin(t, s.DB, s.Router, "alice@example.com", string(user.RoleCustomer))
		dbtest.SetBalance(t, s.DB, userID, 450)

		resp, code := s.createRedemption(t, token, dbtest.RewardFreeCoffeeID, uuid.New())
		require.Equal(t, http.StatusCreated, code)
		require.Equal(t, int64(330), dbtest.GetBalance(t, s.DB, userID))

		dbtest.ForceExpiry(t, s.DB, resp.ID)

		expireURL := redemptionsURL + "/" + resp.ID.String() + "/expire"
		g, _ := errgroup.WithContext(context.Background())
		for i := 0; i < 6; i++ {
			g.Go(func() error {
				w := httptest.PerformRequest(t, s.Router, http.MethodPost, expireURL, nil, token)
				require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())
				return nil
			})
		}
		require.NoError(t, g.Wait())

		require.Equal(t, int64(450), dbtest.GetBalance(t, s.DB, userID))

		var isExpired, pointsRefunded bool
		err := s.DB.QueryRow(t.Context(),
			"SELECT is_expired, points_refunded FROM redemptions WHERE id = $1", resp.ID).
			Scan(&isExpired, &pointsRefunded)
		require.NoError(t, err)
		require.True(t, isExpired)
		require.True(t, pointsRefunded)

		// A straggler trigger after settlement is still a harmless no-op
		w := httptest.PerformRequest(t, s.Router, http.MethodPost, expireURL, nil, token)
		require.Equal(t, http.StatusNoContent, w.Code)
		require.Equal(t, int64(450), dbtest.GetBalance(t, s.DB, userID))
	})

	s.Run("premature expiry hint does not cancel an active claim", func() {
		t := s.T()
		userID, token := authtest.CreateAndLogin(t, s.DB, s.Router, "alice@example.com", string(user.RoleCustomer))
		dbtest.SetBalance(t, s.DB, userID, 450)

		resp, code := s.createRedemption(t, token, dbtest.RewardFreeCoffeeID, uuid.New())
		require.Equal(t, http.StatusCreated, code)

		w := httptest.PerformRequest(t, s.Router, http.MethodPost, redemptionsURL+"/"+resp.ID.String()+"/expire", nil, token)
		require.Equal(t, http.StatusNoContent, w.Code)

		// Deadline has not passed: no refund, claim still active
		require.Equal(t, int64(330), dbtest.GetBalance(t, s.DB, userID))

		var active []*response.RedemptionResponse
		w = httptest.PerformRequest(t, s.Router, http.MethodGet, redemptionsURL, nil, token)
		httptest.AssertSuccessResponse(t, w, http.StatusOK, &active)
		require.Len(t, active, 1)
	})

	s.Run("consumed claims are never refunded", func() {
		t := s.T()
		userID, token := authtest.CreateAndLogin(t, s.DB, s.Router, "alice@example.com", string(user.RoleCustomer))
		_, staffToken := authtest.CreateAndLogin(t, s.DB, s.Router, "staff@example.com", string(user.RoleStaff))
		dbtest.SetBalance(t, s.DB, userID, 450)

		resp, code := s.createRedemption(t, token, dbtest.RewardFreeCoffeeID, uuid.New())
		require.Equal(t, http.StatusCreated, code)

		w := httptest.PerformRequest(t, s.Router, http.MethodPost, redemptionsURL+"/"+resp.ID.String()+"/consume", nil, staffToken)
		require.Equal(t, http.StatusNoContent, w.Code)

		dbtest.ForceExpiry(t, s.DB, resp.ID)
		w = httptest.PerformRequest(t, s.Router, http.MethodPost, redemptionsURL+"/"+resp.ID.String()+"/expire", nil, token)
		require.Equal(t, http.StatusNoContent, w.Code)

		require.Equal(t, int64(330), dbtest.GetBalance(t, s.DB, userID))
	})
}

func (s *redemptionSuite) TestListActiveRedemptions() {
	s.Run("terminal redemptions drop out of the active set", func() {
		t := s.T()
		userID, token := authtest.CreateAndLogin(t, s.DB, s.Router, "alice@example.com", string(user.RoleCustomer))
		_, staffToken := authtest.CreateAndLogin(t, s.DB, s.Router, "staff@example.com", string(user.RoleStaff))
		dbtest.SetBalance(t, s.DB, userID, 450)

		first, code := s.createRedemption(t, token, dbtest.RewardFreeCoffeeID, uuid.New())
		require.Equal(t, http.StatusCreated, code)
		second, code := s.createRedemption(t, token, dbtest.RewardFreeDessertID, uuid.New())
		require.Equal(t, http.StatusCreated, code)

		var active []*response.RedemptionResponse
		w := httptest.PerformRequest(t, s.Router, http.MethodGet, redemptionsURL, nil, token)
		httptest.AssertSuccessResponse(t, w, http.StatusOK, &active)
		require.Len(t, active, 2)

		w = httptest.PerformRequest(t, s.Router, http.MethodPost, redemptionsURL+"/"+first.ID.String()+"/consume", nil, staffToken)
		require.Equal(t, http.StatusNoContent, w.Code)

		w = httptest.PerformRequest(t, s.Router, http.MethodGet, redemptionsURL, nil, token)
		httptest.AssertSuccessResponse(t, w, http.StatusOK, &active)
		require.Len(t, active, 1)
		require.Equal(t, second.ID, active[0].ID)
	})
}
