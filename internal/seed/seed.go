// Package seed inserts demo data for development environments.
package seed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/pipphxntom/AeonPay/internal/model"
	"github.com/pipphxntom/AeonPay/internal/repository"
)

var campuses = []model.Campus{
	{ID: "campus-1", Name: "Tech Campus North", Location: "Sector 62, Noida"},
	{ID: "campus-2", Name: "Business Campus Central", Location: "Connaught Place, Delhi"},
	{ID: "campus-3", Name: "Arts Campus South", Location: "Hauz Khas, Delhi"},
}

var merchantCatalog = []struct {
	Name     string
	Category string
	Icon     string
}{
	{"Chai Point", "beverages", "☕"},
	{"Pizza Corner", "food", "🍕"},
	{"Sandwich Station", "food", "🥪"},
	{"Juice Bar", "beverages", "🥤"},
	{"Canteen Central", "food", "🍽️"},
	{"Rolls & Wraps", "food", "🌯"},
	{"Fresh Fruits", "snacks", "🍎"},
	{"Ice Cream Parlor", "desserts", "🍦"},
	{"Noodle House", "food", "🍜"},
	{"Tea Stall", "beverages", "🫖"},
}

var users = []struct {
	Phone string
	Name  string
	Email string
}{
	{"+91 9876543210", "John Doe", "john.doe@example.com"},
	{"+91 9876543211", "Jane Smith", "jane.smith@example.com"},
	{"+91 9876543212", "Alice Johnson", "alice.johnson@example.com"},
	{"+91 9876543213", "Bob Wilson", "bob.wilson@example.com"},
	{"+91 9876543214", "Carol Brown", "carol.brown@example.com"},
	{"+91 9876543215", "David Lee", "david.lee@example.com"},
	{"+91 9876543216", "Emma Davis", "emma.davis@example.com"},
	{"+91 9876543217", "Frank Miller", "frank.miller@example.com"},
}

// Run inserts demo campuses, merchants, users and plans. Every insert is an
// upsert, so Run is safe on a database that was already seeded.
func Run(ctx context.Context, db *sqlx.DB, log *slog.Logger) error {
	merchants := repository.NewMerchantRepository()
	userRepo := repository.NewUserRepository()
	plans := repository.NewPlanRepository()

	for _, c := range campuses {
		campus := c
		if err := merchants.UpsertCampus(ctx, db, &campus); err != nil {
			return err
		}

		for i, m := range merchantCatalog {
			icon := m.Icon
			location := fmt.Sprintf("Shop %d, %s", i+1, campus.Name)
			merchant := model.Merchant{
				ID:       fmt.Sprintf("merchant-%s-%d", campus.ID, i),
				Name:     m.Name,
				Category: m.Category,
				CampusID: &campus.ID,
				Icon:     &icon,
				Location: &location,
			}
			if err := merchants.UpsertMerchant(ctx, db, &merchant); err != nil {
				return err
			}
		}
	}

	for i, u := range users {
		email := u.Email
		user := model.User{
			ID:    fmt.Sprintf("user-%d", i+1),
			Phone: u.Phone,
			Name:  u.Name,
			Email: &email,
		}
		if err := userRepo.UpsertUser(ctx, db, &user); err != nil {
			return err
		}
	}

	now := time.Now()
	demoPlans := []struct {
		plan    model.Plan
		members []string
	}{
		{
			plan: model.Plan{
				ID:                "plan-demo-1",
				Name:              "Birthday Party",
				CapPerHead:        decimal.NewFromInt(300),
				WindowStart:       now.Add(2 * time.Hour),
				WindowEnd:         now.Add(8 * time.Hour),
				MerchantWhitelist: []string{"merchant-campus-1-0", "merchant-campus-1-1", "merchant-campus-1-8"},
				Status:            model.PlanActive,
				CreatedBy:         "user-1",
			},
			members: []string{"user-1", "user-2", "user-3", "user-4", "user-5"},
		},
		{
			plan: model.Plan{
				ID:                "plan-demo-2",
				Name:              "Movie Night",
				CapPerHead:        decimal.NewFromInt(200),
				WindowStart:       now.Add(time.Hour),
				WindowEnd:         now.Add(5 * time.Hour),
				MerchantWhitelist: []string{"merchant-campus-1-2", "merchant-campus-1-3", "merchant-campus-1-9"},
				Status:            model.PlanActive,
				CreatedBy:         "user-2",
			},
			members: []string{"user-2", "user-6", "user-7", "user-8"},
		},
	}

	for _, d := range demoPlans {
		plan := d.plan
		if err := plans.UpsertPlan(ctx, db, &plan); err != nil {
			return err
		}
		for _, userID := range d.members {
			member := model.PlanMember{
				ID:     uuid.NewString(),
				PlanID: plan.ID,
				UserID: userID,
				State:  "active",
			}
			if err := plans.AddMember(ctx, db, &member); err != nil {
				return err
			}
		}
	}

	log.Info("demo data seeded",
		"campuses", len(campuses),
		"merchants", len(campuses)*len(merchantCatalog),
		"users", len(users),
		"plans", len(demoPlans))
	return nil
}
