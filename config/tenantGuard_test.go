package config

import (
	"context"
	"strings"
	"testing"

	"github.com/mmdatafocus/rentals_backend/appctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type guardedRow struct {
	ID         string `gorm:"primary_key;size:36"`
	LandlordID string `gorm:"size:36"`
	Note       string
}

type unguardedRow struct {
	ID   string `gorm:"primary_key;size:36"`
	Note string
}

// dryRunDB builds statements against the mysql dialect without a server.
func dryRunDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(mysql.New(mysql.Config{
		DSN:                       "rentals:rentals@tcp(127.0.0.1:3306)/rentals?parseTime=true",
		SkipInitializeWithVersion: true,
	}), &gorm.Config{DryRun: true, DisableAutomaticPing: true, Logger: logger.Discard})
	require.NoError(t, err)
	require.NoError(t, db.Use(NewLandlordGuardPlugin()))
	return db
}

func landlordCtx(id string) context.Context {
	return appctx.Set(context.Background(), appctx.ContextKeyLandlordId, id)
}

func TestLandlordGuard_ScopesQueries(t *testing.T) {
	db := dryRunDB(t)

	stmt := db.WithContext(landlordCtx("landlord-1")).Find(&[]guardedRow{}).Statement
	assert.Contains(t, stmt.SQL.String(), "`landlord_id` = ?")
	assert.Contains(t, stmt.Vars, "landlord-1")
}

func TestLandlordGuard_ScopesUpdates(t *testing.T) {
	db := dryRunDB(t)

	stmt := db.WithContext(landlordCtx("landlord-1")).Model(&guardedRow{ID: "row-1"}).Update("note", "x").Statement
	assert.Contains(t, stmt.SQL.String(), "`landlord_id` = ?")
	assert.Contains(t, stmt.Vars, "landlord-1")
}

func TestLandlordGuard_Bypasses(t *testing.T) {
	db := dryRunDB(t)
	cases := map[string]context.Context{
		"no landlord": context.Background(),
		"admin":       appctx.Set(landlordCtx("landlord-1"), appctx.ContextKeyIsAdmin, true),
		"skip scope":  appctx.Set(landlordCtx("landlord-1"), appctx.ContextKeySkipTenantScope, true),
	}
	for name, ctx := range cases {
		t.Run(name, func(t *testing.T) {
			stmt := db.WithContext(ctx).Find(&[]guardedRow{}).Statement
			assert.NotContains(t, stmt.SQL.String(), "landlord_id")
		})
	}

	stmt := db.WithContext(landlordCtx("landlord-1")).Find(&[]unguardedRow{}).Statement
	assert.NotContains(t, stmt.SQL.String(), "landlord_id", "tables without the column are left alone")
}

func TestLandlordGuard_KeepsExplicitFilter(t *testing.T) {
	db := dryRunDB(t)

	stmt := db.WithContext(landlordCtx("landlord-1")).Where("landlord_id = ?", "landlord-1").Find(&[]guardedRow{}).Statement
	assert.Equal(t, 1, strings.Count(stmt.SQL.String(), "landlord_id"))
}
