package config

import (
	"context"
	"strings"

	"github.com/mmdatafocus/unified_backend/appctx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Columns that flag seeded demo rows.
var demoColumns = []string{"is_demo_data", "is_demo_user"}

// DemoScopePlugin hides seeded demo rows from reads when the request context asks for it.
// Writes are never scoped so seeding and cleanup keep working.
//
// NOTE:
// - This does NOT apply to Raw SQL queries.
// - An explicit filter on the demo column wins over the plugin.
type DemoScopePlugin struct{}

func NewDemoScopePlugin() *DemoScopePlugin { return &DemoScopePlugin{} }

func (p *DemoScopePlugin) Name() string { return "demo_scope" }

func (p *DemoScopePlugin) Initialize(db *gorm.DB) error {
	if err := db.Callback().Query().Before("gorm:query").Register("demo_scope:query", demoScopeCallback); err != nil {
		return err
	}
	if err := db.Callback().Row().Before("gorm:row").Register("demo_scope:row", demoScopeCallback); err != nil {
		return err
	}
	return nil
}

func demoScopeCallback(db *gorm.DB) {
	if db == nil || db.Statement == nil || db.Statement.Schema == nil {
		return
	}
	ctx := db.Statement.Context
	if ctx == nil || !shouldHideDemo(ctx) {
		return
	}

	column := ""
	for _, f := range db.Statement.Schema.Fields {
		for _, c := range demoColumns {
			if strings.EqualFold(f.DBName, c) {
				column = f.DBName
			}
		}
	}
	if column == "" {
		return
	}
	if whereHasColumn(db.Statement.Clauses["WHERE"], column) {
		return
	}

	db.Statement.AddClause(clause.Where{
		Exprs: []clause.Expression{
			clause.Eq{
				Column: clause.Column{Table: db.Statement.Table, Name: column},
				Value:  false,
			},
		},
	})
}

func shouldHideDemo(ctx context.Context) bool {
	v, ok := appctx.GetBool(ctx, appctx.ContextKeyHideDemoData)
	return ok && v
}

func whereHasColumn(c clause.Clause, column string) bool {
	if c.Expression == nil {
		return false
	}
	w, ok := c.Expression.(clause.Where)
	if !ok {
		return false
	}
	for _, e := range w.Exprs {
		if exprHasColumn(e, column) {
			return true
		}
	}
	return false
}

func exprHasColumn(e clause.Expression, column string) bool {
	switch v := e.(type) {
	case clause.Eq:
		return colIs(v.Column, column)
	case clause.Neq:
		return colIs(v.Column, column)
	case clause.IN:
		return colIs(v.Column, column)
	case clause.AndConditions:
		for _, x := range v.Exprs {
			if exprHasColumn(x, column) {
				return true
			}
		}
		return false
	case clause.OrConditions:
		for _, x := range v.Exprs {
			if exprHasColumn(x, column) {
				return true
			}
		}
		return false
	case clause.Expr:
		// Best-effort for raw expressions.
		return strings.Contains(strings.ToLower(v.SQL), column)
	default:
		return false
	}
}

func colIs(col any, column string) bool {
	switch c := col.(type) {
	case string:
		return strings.EqualFold(c, column)
	case clause.Column:
		return strings.EqualFold(c.Name, column)
	default:
		return false
	}
}
