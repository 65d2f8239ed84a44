package services

import (
	"context"

	"gorm.io/gorm"

	"github.com/yungbote/trackchat-backend/internal/platform/dbctx"
)

// inTx runs fn in a transaction. When dbc already carries one, fn runs in a
// savepoint nested inside it rather than on a second connection.
func inTx(dbc dbctx.Context, db *gorm.DB, fn func(tx *gorm.DB) error) error {
	base := dbc.Tx
	if base == nil {
		base = db
	}
	return base.WithContext(ctxOf(dbc)).Transaction(fn)
}

func ctxOf(dbc dbctx.Context) context.Context {
	if dbc.Ctx == nil {
		return context.Background()
	}
	return dbc.Ctx
}
