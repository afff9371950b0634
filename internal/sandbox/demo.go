package sandbox

import (
	"context"
	"errors"
	"time"

	"github.com/neomorfeo/storeconsole/internal/domain"
)

// Demo credentials created by SeedDemo.
const (
	DemoEmail    = "demo@example.com"
	DemoPassword = "demo"
)

// SeedDemo creates a demo merchant with two stores and a small theme
// catalogue. Running it against an already seeded database is a no-op.
func (s *Sandbox) SeedDemo(ctx context.Context) error {
	for _, t := range []Theme{
		{Slug: "aurora", Name: "Aurora"},
		{Slug: "minimal", Name: "Minimal"},
		{Slug: "boutique", Name: "Boutique"},
	} {
		var conflict *domain.SlugConflictError
		if _, err := s.SeedTheme(ctx, t.Slug, t.Name); err != nil && !errors.As(err, &conflict) {
			return err
		}
	}

	now := time.Now().UTC().Truncate(time.Second)
	_, _, err := s.Seed(ctx, User{Email: DemoEmail, FirstName: "Demo", LastName: "Merchant"}, DemoPassword,
		Store{Slug: "demo-outfitters", Name: "Demo Outfitters", IsActive: true, PlanID: "starter", CreatedAt: now.Add(-48 * time.Hour)},
		Store{Slug: "demo-bakery", Name: "Demo Bakery", IsActive: true, PlanID: "pro", CreatedAt: now.Add(-24 * time.Hour)},
	)
	if errors.Is(err, ErrEmailTaken) {
		return nil
	}
	return err
}
