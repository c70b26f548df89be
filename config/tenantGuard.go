package config

import (
	"context"
	"strings"

	"github.com/mmdatafocus/rentals_backend/appctx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LandlordGuardPlugin enforces multi-landlord isolation by automatically scoping
// queries/updates/deletes to the request's landlord_id when the model has a landlord_id column.
//
// NOTE:
//   - This does NOT apply to Raw SQL queries. Those must include landlord_id manually.
//   - The scope is only active when a landlord id was put into the context. The
//     review queue sets it for landlord callers; payment initiation and callback
//     reconciliation resolve the landlord themselves and never set it.
type LandlordGuardPlugin struct{}

func NewLandlordGuardPlugin() *LandlordGuardPlugin { return &LandlordGuardPlugin{} }

func (p *LandlordGuardPlugin) Name() string { return "landlord_guard" }

func (p *LandlordGuardPlugin) Initialize(db *gorm.DB) error {
	if err := db.Callback().Query().Before("gorm:query").Register("landlord_guard:query", landlordGuardCallback); err != nil {
		return err
	}
	if err := db.Callback().Row().Before("gorm:row").Register("landlord_guard:row", landlordGuardCallback); err != nil {
		return err
	}
	if err := db.Callback().Update().Before("gorm:update").Register("landlord_guard:update", landlordGuardCallback); err != nil {
		return err
	}
	if err := db.Callback().Delete().Before("gorm:delete").Register("landlord_guard:delete", landlordGuardCallback); err != nil {
		return err
	}
	return nil
}

func landlordGuardCallback(db *gorm.DB) {
	if db == nil || db.Statement == nil {
		return
	}
	ctx := db.Statement.Context
	if ctx == nil {
		return
	}
	if shouldBypassLandlordScope(ctx) {
		return
	}
	landlordID := landlordIdFromContext(ctx)
	if landlordID == "" {
		return
	}

	if db.Statement.Schema == nil {
		return
	}
	hasLandlordID := false
	for _, f := range db.Statement.Schema.Fields {
		if strings.EqualFold(f.DBName, "landlord_id") {
			hasLandlordID = true
			break
		}
	}
	if !hasLandlordID {
		return
	}

	// Don't duplicate an explicit landlord filter.
	if whereHasLandlordID(db.Statement.Clauses["WHERE"]) {
		return
	}

	db.Statement.AddClause(clause.Where{
		Exprs: []clause.Expression{
			clause.Eq{
				Column: clause.Column{Table: db.Statement.Table, Name: "landlord_id"},
				Value:  landlordID,
			},
		},
	})
}

func landlordIdFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(appctx.ContextKeyLandlordId).(string); ok && v != "" {
		return v
	}
	return ""
}

func shouldBypassLandlordScope(ctx context.Context) bool {
	if v, ok := ctx.Value(appctx.ContextKeySkipTenantScope).(bool); ok && v {
		return true
	}
	if v, ok := ctx.Value(appctx.ContextKeyIsAdmin).(bool); ok && v {
		return true
	}
	return false
}

func whereHasLandlordID(c clause.Clause) bool {
	if c.Expression == nil {
		return false
	}
	w, ok := c.Expression.(clause.Where)
	if !ok {
		return false
	}
	for _, e := range w.Exprs {
		if exprHasLandlordID(e) {
			return true
		}
	}
	return false
}

func exprHasLandlordID(e clause.Expression) bool {
	switch v := e.(type) {
	case clause.Eq:
		return colIsLandlordID(v.Column)
	case clause.Neq:
		return colIsLandlordID(v.Column)
	case clause.IN:
		return colIsLandlordID(v.Column)
	case clause.AndConditions:
		for _, x := range v.Exprs {
			if exprHasLandlordID(x) {
				return true
			}
		}
		return false
	case clause.OrConditions:
		for _, x := range v.Exprs {
			if exprHasLandlordID(x) {
				return true
			}
		}
		return false
	case clause.Expr:
		// Best-effort for raw expressions.
		return strings.Contains(strings.ToLower(v.SQL), "landlord_id")
	default:
		return false
	}
}

func colIsLandlordID(col any) bool {
	switch c := col.(type) {
	case string:
		return strings.EqualFold(c, "landlord_id")
	case clause.Column:
		return strings.EqualFold(c.Name, "landlord_id")
	default:
		return false
	}
}
