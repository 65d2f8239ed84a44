package tracking

import (
	"context"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/trackchat-backend/internal/data/db"
	"github.com/yungbote/trackchat-backend/internal/data/repos/testutil"
	types "github.com/yungbote/trackchat-backend/internal/domain"
	"github.com/yungbote/trackchat-backend/internal/platform/dbctx"
)

func TestPersonRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewPersonRepo(db, testutil.Logger(t))

	p, err := repo.Create(dbc, &types.Person{Name: "Ada", Email: " Ada@Example.com "})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if p.Email != "ada@example.com" {
		t.Fatalf("Create: email not normalized: %q", p.Email)
	}

	if got, err := repo.GetByEmail(dbc, "ADA@example.com"); err != nil || got == nil || got.ID != p.ID {
		t.Fatalf("GetByEmail: got=%v err=%v", got, err)
	}
	if got, err := repo.GetByVisitorID(dbc, "abc123"); err != nil || got != nil {
		t.Fatalf("GetByVisitorID before backfill: got=%v err=%v", got, err)
	}

	if err := repo.UpdateFields(dbc, p.ID, map[string]interface{}{"visitor_id": "abc123"}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}
	if got, err := repo.GetByVisitorID(dbc, "abc123"); err != nil || got == nil || got.ID != p.ID {
		t.Fatalf("GetByVisitorID: got=%v err=%v", got, err)
	}

	byVisitor, err := repo.ListByVisitorIDs(dbc, []string{"abc123", "zzz"})
	if err != nil || len(byVisitor) != 1 || byVisitor["abc123"] == nil {
		t.Fatalf("ListByVisitorIDs: got=%v err=%v", byVisitor, err)
	}

	later := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	earlier := later.Add(-time.Hour)
	if err := repo.TouchLastActivity(dbc, p.ID, later); err != nil {
		t.Fatalf("TouchLastActivity: %v", err)
	}
	if err := repo.TouchLastActivity(dbc, p.ID, earlier); err != nil {
		t.Fatalf("TouchLastActivity earlier: %v", err)
	}
	got, err := repo.GetByID(dbc, p.ID)
	if err != nil || got == nil || got.LastActivity == nil {
		t.Fatalf("GetByID: got=%v err=%v", got, err)
	}
	if !got.LastActivity.Equal(later) {
		t.Fatalf("last_activity moved backwards: got %s want %s", got.LastActivity, later)
	}
}

func TestPersonRepoCreateByEmail(t *testing.T) {
	conn := testutil.DB(t)
	tx := testutil.Tx(t, conn)

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewPersonRepo(conn, testutil.Logger(t))

	p, created, err := repo.CreateByEmail(dbc, &types.Person{Name: "Ada", Email: "Ada@Example.com"})
	if err != nil || !created || p.ID == 0 {
		t.Fatalf("CreateByEmail: got=%v created=%v err=%v", p, created, err)
	}
	again, created, err := repo.CreateByEmail(dbc, &types.Person{Name: "Someone else", Email: " ADA@example.com"})
	if err != nil || created || again.ID != p.ID || again.Name != "Ada" {
		t.Fatalf("CreateByEmail existing: got=%v created=%v err=%v", again, created, err)
	}
	if _, _, err := repo.CreateByEmail(dbc, &types.Person{Name: "Nobody"}); err == nil {
		t.Fatalf("CreateByEmail without email: want error")
	}

	// The unique index backs the lookup when two writers race past it.
	err = tx.Transaction(func(sp *gorm.DB) error {
		_, err := repo.Create(dbctx.Context{Ctx: ctx, Tx: sp}, &types.Person{Email: "ada@example.com"})
		return err
	})
	if !db.IsUniqueViolation(err) {
		t.Fatalf("duplicate email insert: want unique violation, got %v", err)
	}

	// Blank emails are not constrained.
	for i := 0; i < 2; i++ {
		if _, err := repo.Create(dbc, &types.Person{Name: "anon"}); err != nil {
			t.Fatalf("Create(blank email %d): %v", i, err)
		}
	}
}

func TestWebsiteRepoDeleteCascades(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewWebsiteRepo(db, testutil.Logger(t))

	site := testutil.SeedWebsite(t, ctx, tx, "example.com")
	if got, err := repo.GetBySiteID(dbc, site.SiteID); err != nil || got == nil || got.ID != site.ID {
		t.Fatalf("GetBySiteID: got=%v err=%v", got, err)
	}
	if got, err := repo.GetBySiteID(dbc, "missing"); err != nil || got != nil {
		t.Fatalf("GetBySiteID missing: got=%v err=%v", got, err)
	}

	c := testutil.SeedChat(t, ctx, tx, site.ID, "abc123")
	if err := tx.Create(&types.ChatMessage{ChatID: c.ID, Seq: 1, Message: "hi"}).Error; err != nil {
		t.Fatalf("seed message: %v", err)
	}
	testutil.SeedPageView(t, ctx, tx, site.ID, "abc123", "/", time.Now().UTC())

	if err := repo.Delete(dbc, site.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	for _, m := range []interface{}{&types.Website{}, &types.Chat{}, &types.ChatMessage{}, &types.Activity{}} {
		var n int64
		if err := tx.Model(m).Count(&n).Error; err != nil {
			t.Fatalf("count %T: %v", m, err)
		}
		if n != 0 {
			t.Fatalf("%T survived website delete: %d rows", m, n)
		}
	}
}
