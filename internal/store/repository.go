/**
 * @description
 * This file implements the data access layer for the subscription-service.
 * It contains all the SQL queries and logic for interacting with the
 * database, including the transactional subscription approval that fans
 * out referral commissions.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/algoflow/subscription-service/internal/domain"
)

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrPlanNotFound         = errors.New("plan not found")
	ErrOwnerNotFound        = errors.New("subscription owner not found")
	ErrInvalidState         = errors.New("subscription is not pending approval")
	ErrDuplicateUser        = errors.New("user already exists")
)

// PostgresRepository is a concrete implementation of the app.Repository
// interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const userColumns = `id, identity_subject, email, display_name, referral_code, referrer_id, upline, subscription_status, plan_id, profit_share, is_admin, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*domain.User, error) {
	var user domain.User
	err := row.Scan(
		&user.ID,
		&user.IdentitySubject,
		&user.Email,
		&user.DisplayName,
		&user.ReferralCode,
		&user.ReferrerID,
		&user.Upline,
		&user.SubscriptionStatus,
		&user.PlanID,
		&user.ProfitShare,
		&user.IsAdmin,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// FindUserByID retrieves a user by their internal id.
func (r *PostgresRepository) FindUserByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.db.QueryRow(ctx, query, id))
}

// FindUserByIdentitySubject resolves the internal user record from the
// identity provider's subject claim.
func (r *PostgresRepository) FindUserByIdentitySubject(ctx context.Context, subject string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE identity_subject = $1`
	return scanUser(r.db.QueryRow(ctx, query, subject))
}

// FindUserByReferralCode retrieves a user by their referral code.
func (r *PostgresRepository) FindUserByReferralCode(ctx context.Context, code string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE referral_code = $1`
	return scanUser(r.db.QueryRow(ctx, query, code))
}

// CreateUser inserts a new user record with its upline snapshot.
func (r *PostgresRepository) CreateUser(ctx context.Context, user *domain.User) error {
	query := `
        INSERT INTO users (id, identity_subject, email, display_name, referral_code, referrer_id, upline, subscription_status, profit_share, is_admin)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        ON CONFLICT (identity_subject) DO NOTHING
    `
	tag, err := r.db.Exec(ctx, query,
		user.ID,
		user.IdentitySubject,
		user.Email,
		user.DisplayName,
		user.ReferralCode,
		user.ReferrerID,
		user.Upline,
		user.SubscriptionStatus,
		user.ProfitShare,
		user.IsAdmin,
	)
	if err != nil {
		return fmt.Errorf("insert users/%s: %w", user.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDuplicateUser
	}
	return nil
}

// UpdateUserSubscriptionStatus sets the subscription status flag on a
// user record. Used by the non-atomic rejection path.
func (r *PostgresRepository) UpdateUserSubscriptionStatus(ctx context.Context, userID uuid.UUID, status string) error {
	tag, err := r.db.Exec(ctx, `UPDATE users SET subscription_status = $1 WHERE id = $2`, status, userID)
	if err != nil {
		return fmt.Errorf("update users/%s: %w", userID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// CountDirectReferrals returns how many users name the given user as
// their direct referrer.
func (r *PostgresRepository) CountDirectReferrals(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE referrer_id = $1`, userID).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// ListPlans returns the seeded plan catalog.
func (r *PostgresRepository) ListPlans(ctx context.Context) ([]domain.Plan, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, price, target, features FROM plans ORDER BY price`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plans []domain.Plan
	for rows.Next() {
		var plan domain.Plan
		if err := rows.Scan(&plan.ID, &plan.Name, &plan.Price, &plan.Target, &plan.Features); err != nil {
			return nil, err
		}
		plans = append(plans, plan)
	}
	return plans, rows.Err()
}

// FindPlanByID retrieves a single plan.
func (r *PostgresRepository) FindPlanByID(ctx context.Context, id string) (*domain.Plan, error) {
	var plan domain.Plan
	query := `SELECT id, name, price, target, features FROM plans WHERE id = $1`
	err := r.db.QueryRow(ctx, query, id).Scan(&plan.ID, &plan.Name, &plan.Price, &plan.Target, &plan.Features)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPlanNotFound
		}
		return nil, err
	}
	return &plan, nil
}

const subscriptionColumns = `id, user_id, plan_id, status, paid_amount, payment_proof_url, created_at, approved_at, approved_by`

func scanSubscription(row rowScanner) (*domain.Subscription, error) {
	var sub domain.Subscription
	err := row.Scan(
		&sub.ID,
		&sub.UserID,
		&sub.PlanID,
		&sub.Status,
		&sub.PaidAmount,
		&sub.PaymentProofURL,
		&sub.CreatedAt,
		&sub.ApprovedAt,
		&sub.ApprovedBy,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, err
	}
	return &sub, nil
}

// CreateSubscription inserts a new pending subscription request.
func (r *PostgresRepository) CreateSubscription(ctx context.Context, sub *domain.Subscription) error {
	query := `
        INSERT INTO subscriptions (id, user_id, plan_id, status, paid_amount, payment_proof_url)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING created_at
    `
	err := r.db.QueryRow(ctx, query,
		sub.ID,
		sub.UserID,
		sub.PlanID,
		sub.Status,
		sub.PaidAmount,
		sub.PaymentProofURL,
	).Scan(&sub.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert subscriptions/%s: %w", sub.ID, err)
	}
	return nil
}

// FindSubscriptionByID retrieves a subscription by id.
func (r *PostgresRepository) FindSubscriptionByID(ctx context.Context, id uuid.UUID) (*domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id = $1`
	return scanSubscription(r.db.QueryRow(ctx, query, id))
}

// FindLatestSubscriptionByUserID retrieves the most recent subscription
// request for a user.
func (r *PostgresRepository) FindLatestSubscriptionByUserID(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE user_id = $1 ORDER BY created_at DESC LIMIT 1`
	return scanSubscription(r.db.QueryRow(ctx, query, userID))
}

// ListSubscriptionsByStatus returns subscriptions in a given state,
// oldest first, for the admin review queue.
func (r *PostgresRepository) ListSubscriptionsByStatus(ctx context.Context, status string) ([]domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE status = $1 ORDER BY created_at`
	rows, err := r.db.Query(ctx, query, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []domain.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}

// ApproveSubscription transitions a pending subscription to active and
// fans out referral commissions to the owner's upline, all inside a
// single transaction. Either every write lands or none does; a
// concurrent approval of the same subscription is serialized by the row
// lock and the loser observes ErrInvalidState.
func (r *PostgresRepository) ApproveSubscription(ctx context.Context, subscriptionID, approvedBy uuid.UUID, now time.Time) (*domain.ApprovalOutcome, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	sub, err := scanSubscription(tx.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = $1 FOR UPDATE`, subscriptionID))
	if err != nil {
		return nil, err
	}
	if sub.Status != domain.SubscriptionPendingApproval {
		return nil, ErrInvalidState
	}

	owner, err := scanUser(tx.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, sub.UserID))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrOwnerNotFound
		}
		return nil, err
	}

	_, err = tx.Exec(ctx,
		`UPDATE subscriptions SET status = $1, approved_at = $2, approved_by = $3 WHERE id = $4`,
		domain.SubscriptionActive, now, approvedBy, sub.ID)
	if err != nil {
		return nil, fmt.Errorf("update subscriptions/%s: %w", sub.ID, err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE users SET subscription_status = $1, plan_id = $2 WHERE id = $3`,
		domain.UserStatusActive, sub.PlanID, owner.ID)
	if err != nil {
		return nil, fmt.Errorf("update users/%s: %w", owner.ID, err)
	}

	commissions := domain.BuildCommissions(sub, owner, now)
	for _, c := range commissions {
		_, err = tx.Exec(ctx,
			`INSERT INTO commissions (id, user_id, from_user_id, subscription_id, amount, level, rate, created_at)
             VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			c.ID, c.UserID, c.FromUserID, c.SubscriptionID, c.Amount, c.Level, c.Rate, c.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("insert users/%s/commissions: %w", c.UserID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	sub.Status = domain.SubscriptionActive
	sub.ApprovedAt = &now
	sub.ApprovedBy = &approvedBy
	owner.SubscriptionStatus = domain.UserStatusActive
	owner.PlanID = &sub.PlanID

	return &domain.ApprovalOutcome{
		Subscription: sub,
		Owner:        owner,
		Commissions:  commissions,
	}, nil
}

// MarkSubscriptionRejected flips a pending subscription to rejected.
// Unlike approval this is a single-row write: the rejection path
// deliberately performs its two updates (subscription, then user)
// as independent writes.
func (r *PostgresRepository) MarkSubscriptionRejected(ctx context.Context, subscriptionID uuid.UUID) (*domain.Subscription, error) {
	sub, err := scanSubscription(r.db.QueryRow(ctx, `
        UPDATE subscriptions SET status = $1
        WHERE id = $2 AND status = $3
        RETURNING `+subscriptionColumns,
		domain.SubscriptionRejected, subscriptionID, domain.SubscriptionPendingApproval))
	if err == nil {
		return sub, nil
	}
	if !errors.Is(err, ErrSubscriptionNotFound) {
		return nil, fmt.Errorf("update subscriptions/%s: %w", subscriptionID, err)
	}

	// No pending row matched; report not-found and wrong-state distinctly.
	if _, lookupErr := r.FindSubscriptionByID(ctx, subscriptionID); lookupErr != nil {
		return nil, lookupErr
	}
	return nil, ErrInvalidState
}

// ListCommissionsByUserID returns a user's commission ledger, newest first.
func (r *PostgresRepository) ListCommissionsByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Commission, error) {
	query := `
        SELECT id, user_id, from_user_id, subscription_id, amount, level, rate, created_at
        FROM commissions
        WHERE user_id = $1
        ORDER BY created_at DESC
    `
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var commissions []domain.Commission
	for rows.Next() {
		var c domain.Commission
		if err := rows.Scan(&c.ID, &c.UserID, &c.FromUserID, &c.SubscriptionID, &c.Amount, &c.Level, &c.Rate, &c.CreatedAt); err != nil {
			return nil, err
		}
		commissions = append(commissions, c)
	}
	return commissions, rows.Err()
}
