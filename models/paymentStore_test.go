package models

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/mmdatafocus/rentals_backend/appctx"
	"github.com/mmdatafocus/rentals_backend/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func dryRunDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(mysql.New(mysql.Config{
		DSN:                       "rentals:rentals@tcp(127.0.0.1:3306)/rentals?parseTime=true",
		SkipInitializeWithVersion: true,
	}), &gorm.Config{DryRun: true, DisableAutomaticPing: true, Logger: logger.Discard})
	require.NoError(t, err)
	require.NoError(t, db.Use(config.NewLandlordGuardPlugin()))
	return db
}

func reviewQuery(db *gorm.DB, ctx context.Context, filter UnmatchedFilter, now time.Time) *gorm.Statement {
	return db.WithContext(ctx).Scopes(ReviewQueueScope(filter, now)).Find(&[]InboundNotification{}).Statement
}

func TestReviewQueue_IncludesHeuristicAndStuckRows(t *testing.T) {
	db := dryRunDB(t)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	stmt := reviewQuery(db, context.Background(), UnmatchedFilter{}, now)
	sql := stmt.SQL.String()

	assert.Contains(t, sql, "state = ? OR match_outcome = ?")
	assert.Contains(t, sql, "created_at < ?")
	assert.Contains(t, stmt.Vars, NotificationStateUnmatched)
	assert.Contains(t, stmt.Vars, MatchOutcomeMatchedHeuristic)
	assert.Contains(t, stmt.Vars, now.Add(-ReviewStaleAfter))
	assert.Contains(t, sql, "ORDER BY created_at DESC")
}

func TestReviewQueue_LandlordScopeComesFromContext(t *testing.T) {
	db := dryRunDB(t)
	ctx := appctx.Set(context.Background(), appctx.ContextKeyLandlordId, "landlord-1")

	stmt := reviewQuery(db, ctx, UnmatchedFilter{}, time.Now())

	assert.Equal(t, 1, strings.Count(stmt.SQL.String(), "landlord_id"))
	assert.Contains(t, stmt.Vars, "landlord-1")
}

func TestReviewQueue_AdminFilters(t *testing.T) {
	db := dryRunDB(t)
	ctx := appctx.Set(context.Background(), appctx.ContextKeyIsAdmin, true)
	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	stmt := reviewQuery(db, ctx, UnmatchedFilter{
		LandlordID: "landlord-2",
		Outcome:    MatchOutcomeInvalidAmount,
		Since:      &since,
	}, time.Now())
	sql := stmt.SQL.String()

	assert.Equal(t, 1, strings.Count(sql, "landlord_id"))
	assert.Contains(t, stmt.Vars, "landlord-2")
	assert.Contains(t, sql, "match_outcome = ?")
	assert.Contains(t, stmt.Vars, MatchOutcomeInvalidAmount)
	assert.Contains(t, stmt.Vars, since)
}

func TestReviewQueue_UnscopedWithoutLandlord(t *testing.T) {
	db := dryRunDB(t)
	stmt := reviewQuery(db, context.Background(), UnmatchedFilter{}, time.Now())
	assert.NotContains(t, stmt.SQL.String(), "landlord_id")
}
