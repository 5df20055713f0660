/**
 * @description
 * Schema bootstrap for the subscription-service. Tables are created
 * idempotently at startup and the fixed plan catalog is seeded, so the
 * service can start against an empty database.
 */
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/algoflow/subscription-service/internal/domain"
)

// EnsureSchema creates the service's tables if they do not exist and
// seeds the plan catalog.
func EnsureSchema(ctx context.Context, db *pgxpool.Pool) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
            id UUID PRIMARY KEY,
            identity_subject TEXT UNIQUE NOT NULL,
            email TEXT NOT NULL,
            display_name TEXT NOT NULL DEFAULT '',
            referral_code TEXT UNIQUE NOT NULL,
            referrer_id UUID REFERENCES users(id),
            upline UUID[] NOT NULL DEFAULT '{}',
            subscription_status TEXT NOT NULL DEFAULT 'inactive',
            plan_id TEXT,
            profit_share NUMERIC NOT NULL DEFAULT 3.5,
            is_admin BOOLEAN NOT NULL DEFAULT false,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        )`,
		`CREATE TABLE IF NOT EXISTS plans (
            id TEXT PRIMARY KEY,
            name TEXT NOT NULL,
            price NUMERIC NOT NULL,
            target TEXT NOT NULL DEFAULT '',
            features TEXT[] NOT NULL DEFAULT '{}'
        )`,
		`CREATE TABLE IF NOT EXISTS subscriptions (
            id UUID PRIMARY KEY,
            user_id UUID NOT NULL REFERENCES users(id),
            plan_id TEXT NOT NULL REFERENCES plans(id),
            status TEXT NOT NULL DEFAULT 'pending_approval',
            paid_amount NUMERIC NOT NULL CHECK (paid_amount > 0),
            payment_proof_url TEXT NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            approved_at TIMESTAMPTZ,
            approved_by UUID
        )`,
		`CREATE TABLE IF NOT EXISTS commissions (
            id UUID PRIMARY KEY,
            user_id UUID NOT NULL REFERENCES users(id),
            from_user_id UUID NOT NULL REFERENCES users(id),
            subscription_id UUID NOT NULL REFERENCES subscriptions(id),
            amount NUMERIC NOT NULL,
            level INT NOT NULL CHECK (level BETWEEN 1 AND 5),
            rate NUMERIC NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            UNIQUE (subscription_id, user_id, level)
        )`,
		`CREATE INDEX IF NOT EXISTS idx_subscriptions_user_created ON subscriptions (user_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_subscriptions_status ON subscriptions (status)`,
		`CREATE INDEX IF NOT EXISTS idx_commissions_user ON commissions (user_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_users_referrer ON users (referrer_id)`,
	}

	for _, stmt := range statements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}

	return seedPlans(ctx, db)
}

func seedPlans(ctx context.Context, db *pgxpool.Pool) error {
	for _, plan := range domain.SeedPlans {
		_, err := db.Exec(ctx, `
            INSERT INTO plans (id, name, price, target, features)
            VALUES ($1, $2, $3, $4, $5)
            ON CONFLICT (id) DO UPDATE SET
                name = EXCLUDED.name,
                price = EXCLUDED.price,
                target = EXCLUDED.target,
                features = EXCLUDED.features
        `, plan.ID, plan.Name, plan.Price, plan.Target, plan.Features)
		if err != nil {
			return fmt.Errorf("seed plans/%s: %w", plan.ID, err)
		}
	}
	return nil
}
