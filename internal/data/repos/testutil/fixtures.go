package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/trackchat-backend/internal/domain"
)

func SeedWebsite(tb testing.TB, ctx context.Context, tx *gorm.DB, domain string) *types.Website {
	tb.Helper()
	w := &types.Website{
		Name:   domain,
		SiteID: uuid.New().String(),
		Domain: domain,
	}
	if err := tx.WithContext(ctx).Create(w).Error; err != nil {
		tb.Fatalf("seed website: %v", err)
	}
	return w
}

func SeedPerson(tb testing.TB, ctx context.Context, tx *gorm.DB, email, visitorID string) *types.Person {
	tb.Helper()
	p := &types.Person{
		Name:      "Ada",
		Email:     email,
		VisitorID: visitorID,
	}
	if err := tx.WithContext(ctx).Create(p).Error; err != nil {
		tb.Fatalf("seed person: %v", err)
	}
	return p
}

func SeedPageView(tb testing.TB, ctx context.Context, tx *gorm.DB, websiteID uint64, visitorID, url string, at time.Time) *types.Activity {
	tb.Helper()
	a := &types.Activity{
		WebsiteID:    websiteID,
		ActivityType: types.ActivityViewedPage,
		VisitorID:    visitorID,
		PageURL:      url,
		PageTitle:    url,
		OccurredAt:   at,
	}
	if err := tx.WithContext(ctx).Create(a).Error; err != nil {
		tb.Fatalf("seed page view: %v", err)
	}
	return a
}

func SeedChat(tb testing.TB, ctx context.Context, tx *gorm.DB, websiteID uint64, visitorID string) *types.Chat {
	tb.Helper()
	c := &types.Chat{
		WebsiteID: websiteID,
		VisitorID: visitorID,
		Status:    types.ChatStatusActive,
	}
	if err := tx.WithContext(ctx).Create(c).Error; err != nil {
		tb.Fatalf("seed chat: %v", err)
	}
	return c
}

func PtrTime(v time.Time) *time.Time { return &v }
