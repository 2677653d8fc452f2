//go:build unit || e2e

package dbtest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
)

// Well-known catalog rows seeded by SeedReferenceData.
var (
	RewardFreeCoffeeID  = uuid.MustParse("a1f6e1a0-0000-4000-8000-000000000001") // 120 points
	RewardFreeDessertID = uuid.MustParse("a1f6e1a0-0000-4000-8000-000000000002") // 80 points
	RewardRetiredID     = uuid.MustParse("a1f6e1a0-0000-4000-8000-000000000003") // inactive
)

func CreateTestUser(t *testing.T, db DBLike, email, role string) uuid.UUID {
	t.Helper()

	userID := uuid.New()
	ctx := context.Background()

	// bcrypt hash of "password123"
	passwordHash := "$2a$12$uhAjVE9f92IGYv3E25pJNetg.27lVt0p7jmLWjqjmhOg92ldPS0A."
	tag, err := db.Exec(ctx, "INSERT INTO users (id, email, password_hash, role) VALUES ($1, $2, $3, $4) ON CONFLICT (email) DO NOTHING",
		userID, email, passwordHash, role)
	require.NoError(t, err)

	if tag.RowsAffected() == 0 {
		_ = db.QueryRow(ctx, "SELECT id FROM users WHERE email = $1", email).Scan(&userID)
	}

	return userID
}

// SetBalance forces a user's point balance to an exact value.
func SetBalance(t *testing.T, db DBLike, userID uuid.UUID, balance int64) {
	t.Helper()

	_, err := db.Exec(context.Background(), `
		INSERT INTO point_balances (user_id, balance) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET balance = EXCLUDED.balance, updated_at = now()`,
		userID, balance)
	require.NoError(t, err)
}

func GetBalance(t *testing.T, db DBLike, userID uuid.UUID) int64 {
	t.Helper()

	var balance int64
	err := db.QueryRow(context.Background(),
		"SELECT balance FROM point_balances WHERE user_id = $1", userID).Scan(&balance)
	require.NoError(t, err)
	return balance
}

// ForceExpiry backdates a redemption so it is already overdue.
func ForceExpiry(t *testing.T, db DBLike, redemptionID uuid.UUID) {
	t.Helper()

	_, err := db.Exec(context.Background(),
		"UPDATE redemptions SET redeemed_at = now() - interval '1 hour', expires_at = now() - interval '45 minutes' WHERE id = $1",
		redemptionID)
	require.NoError(t, err)
}

// inserts basic catalog data needed by tests
func SeedReferenceData(pool *pgxpool.Pool) error {
	ctx := context.Background()

	_, err := pool.Exec(ctx, `
		INSERT INTO rewards (id, name, description, points_cost, is_active) VALUES
		    ($1, 'Free Coffee', 'One complimentary coffee', 120, true),
		    ($2, 'Free Dessert', 'One complimentary dessert', 80, true),
		    ($3, 'Retired Reward', 'No longer offered', 60, false)
		ON CONFLICT (id) DO NOTHING;
	`, RewardFreeCoffeeID, RewardFreeDessertID, RewardRetiredID)
	return err
}

var (
	buildTruncateOnce sync.Once
	truncateSQL       atomic.Value // string
)

// truncates all tables and reseeds reference data
func ResetDB(pool *pgxpool.Pool) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	buildTruncateOnce.Do(func() {
		rows, err := pool.Query(ctx, `
		  SELECT 'public.' || quote_ident(tablename)
		  FROM pg_tables
		  WHERE schemaname = 'public'
		    AND tablename NOT IN ('schema_migrations')`)
		if err != nil {
			truncateSQL.Store("")
			return
		}
		defer rows.Close()
		var tables []string
		for rows.Next() {
			var t string
			if err := rows.Scan(&t); err != nil {
				truncateSQL.Store("")
				return
			}
			tables = append(tables, t)
		}
		if rows.Err() != nil {
			truncateSQL.Store("")
			return
		}
		if len(tables) == 0 {
			truncateSQL.Store("SELECT 1")
			return
		}
		truncateSQL.Store("TRUNCATE " + strings.Join(tables, ", ") + " RESTART IDENTITY CASCADE;")
	})
	sqlAny := truncateSQL.Load()
	if sqlAny == nil || sqlAny.(string) == "" {
		return fmt.Errorf("failed to build TRUNCATE SQL")
	}
	if _, err := pool.Exec(ctx, sqlAny.(string)); err != nil {
		return err
	}

	return SeedReferenceData(pool)
}
