/**
 * @description
 * This file contains the core business logic for the subscription-service:
 * user provisioning with referral upline snapshots, subscription
 * submission, and the admin approval workflow that fans out referral
 * commissions.
 *
 * @notes
 * - Approval is all-or-nothing: the repository applies the subscription
 *   update, the owner update and the commission inserts in a single
 *   transaction. Rejection intentionally remains two independent writes,
 *   matching the established behavior of the platform.
 * - Events are published after the store commit and are best-effort; a
 *   broker failure never fails the operation.
 */
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/algoflow/subscription-service/internal/domain"
	"github.com/algoflow/subscription-service/internal/store"
	"github.com/algoflow/subscription-service/pkg/rabbitmq"
)

var (
	ErrUnauthorized        = errors.New("acting user does not have admin rights")
	ErrInvalidPaidAmount   = errors.New("paid amount must be positive")
	ErrMissingPaymentProof = errors.New("payment proof is required")
	ErrMissingEmail        = errors.New("email is required")
)

// Repository defines the interface for database operations that the
// service needs.
type Repository interface {
	FindUserByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	FindUserByIdentitySubject(ctx context.Context, subject string) (*domain.User, error)
	FindUserByReferralCode(ctx context.Context, code string) (*domain.User, error)
	CreateUser(ctx context.Context, user *domain.User) error
	UpdateUserSubscriptionStatus(ctx context.Context, userID uuid.UUID, status string) error
	CountDirectReferrals(ctx context.Context, userID uuid.UUID) (int, error)

	ListPlans(ctx context.Context) ([]domain.Plan, error)
	FindPlanByID(ctx context.Context, id string) (*domain.Plan, error)

	CreateSubscription(ctx context.Context, sub *domain.Subscription) error
	FindSubscriptionByID(ctx context.Context, id uuid.UUID) (*domain.Subscription, error)
	FindLatestSubscriptionByUserID(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error)
	ListSubscriptionsByStatus(ctx context.Context, status string) ([]domain.Subscription, error)
	ApproveSubscription(ctx context.Context, subscriptionID, approvedBy uuid.UUID, now time.Time) (*domain.ApprovalOutcome, error)
	MarkSubscriptionRejected(ctx context.Context, subscriptionID uuid.UUID) (*domain.Subscription, error)

	ListCommissionsByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Commission, error)
}

// EventPublisher is the interface the service uses to emit lifecycle
// events after store commits.
type EventPublisher interface {
	PublishSubscriptionApproved(ctx context.Context, event rabbitmq.SubscriptionApprovedEvent) error
	PublishSubscriptionRejected(ctx context.Context, event rabbitmq.SubscriptionRejectedEvent) error
}

// Service provides the business logic for subscription management.
type Service struct {
	repo      Repository
	publisher EventPublisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewService creates a new subscription service.
func NewService(repo Repository, publisher EventPublisher, logger *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// ProvisionUser creates the platform record for a freshly signed-up
// identity. If a referral code is supplied it is resolved to a referrer
// and the new user's upline is snapshotted from the referrer's own
// upline. An unknown referral code is not an error; the account is
// simply created without a referrer, matching the signup flow.
// Provisioning is idempotent per identity subject.
func (s *Service) ProvisionUser(ctx context.Context, subject, email, displayName, referralCode string) (*domain.User, error) {
	if email == "" {
		return nil, ErrMissingEmail
	}

	var referrer *domain.User
	if referralCode != "" {
		found, err := s.repo.FindUserByReferralCode(ctx, referralCode)
		switch {
		case err == nil:
			referrer = found
		case errors.Is(err, store.ErrUserNotFound):
			s.logger.Warn("referral code not found, provisioning without referrer", "referral_code", referralCode)
		default:
			return nil, err
		}
	}

	id := uuid.New()
	user := &domain.User{
		ID:                 id,
		IdentitySubject:    subject,
		Email:              email,
		DisplayName:        displayName,
		ReferralCode:       domain.ReferralCodeFromID(id),
		Upline:             domain.BuildUpline(referrer),
		SubscriptionStatus: domain.UserStatusInactive,
		ProfitShare:        domain.DefaultProfitShare,
	}
	if referrer != nil {
		user.ReferrerID = &referrer.ID
	}

	err := s.repo.CreateUser(ctx, user)
	if errors.Is(err, store.ErrDuplicateUser) {
		return s.repo.FindUserByIdentitySubject(ctx, subject)
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// UserBySubject resolves the platform record for an authenticated caller.
func (s *Service) UserBySubject(ctx context.Context, subject string) (*domain.User, error) {
	return s.repo.FindUserByIdentitySubject(ctx, subject)
}

// Plans returns the plan catalog.
func (s *Service) Plans(ctx context.Context) ([]domain.Plan, error) {
	return s.repo.ListPlans(ctx)
}

// SubmitSubscription records a payment-proof submission as a pending
// subscription awaiting admin review. Non-positive paid amounts are
// rejected here, at the creation boundary, so approval never has to
// reason about them.
func (s *Service) SubmitSubscription(ctx context.Context, userID uuid.UUID, req domain.CreateSubscriptionRequest) (*domain.Subscription, error) {
	if _, err := s.repo.FindPlanByID(ctx, req.PlanID); err != nil {
		return nil, err
	}
	if !req.PaidAmount.IsPositive() {
		return nil, ErrInvalidPaidAmount
	}
	if req.PaymentProofURL == "" {
		return nil, ErrMissingPaymentProof
	}

	sub := &domain.Subscription{
		ID:              uuid.New(),
		UserID:          userID,
		PlanID:          req.PlanID,
		Status:          domain.SubscriptionPendingApproval,
		PaidAmount:      req.PaidAmount,
		PaymentProofURL: req.PaymentProofURL,
	}
	if err := s.repo.CreateSubscription(ctx, sub); err != nil {
		return nil, err
	}

	// Flag the user as pending review. A failure here leaves a valid
	// pending subscription behind, so it is logged rather than returned.
	if err := s.repo.UpdateUserSubscriptionStatus(ctx, userID, domain.UserStatusPending); err != nil {
		s.logger.Warn("failed to flag user as pending", "user_id", userID, "error", err)
	}
	return sub, nil
}

// LatestSubscription returns the caller's most recent subscription request.
func (s *Service) LatestSubscription(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error) {
	return s.repo.FindLatestSubscriptionByUserID(ctx, userID)
}

// SubscriptionsByStatus returns the admin review queue for a state.
func (s *Service) SubscriptionsByStatus(ctx context.Context, actingAdminID uuid.UUID, status string) ([]domain.Subscription, error) {
	if err := s.requireAdmin(ctx, actingAdminID); err != nil {
		return nil, err
	}
	return s.repo.ListSubscriptionsByStatus(ctx, status)
}

// Approve transitions one pending subscription to active and distributes
// referral commissions to the owner's upline. The store applies the
// whole write set atomically; this method layers the authorization check
// and the post-commit event on top.
func (s *Service) Approve(ctx context.Context, subscriptionID, actingAdminID uuid.UUID) (*domain.ApprovalOutcome, error) {
	if err := s.requireAdmin(ctx, actingAdminID); err != nil {
		return nil, err
	}

	outcome, err := s.repo.ApproveSubscription(ctx, subscriptionID, actingAdminID, s.now().UTC())
	if err != nil {
		return nil, err
	}

	event := rabbitmq.SubscriptionApprovedEvent{
		SubscriptionID:  outcome.Subscription.ID,
		UserID:          outcome.Owner.ID,
		PlanID:          outcome.Subscription.PlanID,
		PaidAmount:      outcome.Subscription.PaidAmount,
		CommissionCount: len(outcome.Commissions),
		Timestamp:       s.now().UTC(),
	}
	if err := s.publisher.PublishSubscriptionApproved(ctx, event); err != nil {
		s.logger.Warn("failed to publish approval event", "subscription_id", subscriptionID, "error", err)
	}
	return outcome, nil
}

// Reject flips a pending subscription and its owner to rejected. The two
// writes are sequential and independent; if the second fails the caller
// receives an error naming the write that failed, while the first write
// remains in place.
func (s *Service) Reject(ctx context.Context, subscriptionID, actingAdminID uuid.UUID) (*domain.Subscription, error) {
	if err := s.requireAdmin(ctx, actingAdminID); err != nil {
		return nil, err
	}

	sub, err := s.repo.MarkSubscriptionRejected(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}

	if err := s.repo.UpdateUserSubscriptionStatus(ctx, sub.UserID, domain.UserStatusRejected); err != nil {
		return sub, fmt.Errorf("subscription marked rejected but owner update failed: %w", err)
	}

	event := rabbitmq.SubscriptionRejectedEvent{
		SubscriptionID: sub.ID,
		UserID:         sub.UserID,
		PlanID:         sub.PlanID,
		Timestamp:      s.now().UTC(),
	}
	if err := s.publisher.PublishSubscriptionRejected(ctx, event); err != nil {
		s.logger.Warn("failed to publish rejection event", "subscription_id", subscriptionID, "error", err)
	}
	return sub, nil
}

// ReferralSummary aggregates a user's referral standing: their code,
// how many users they directly referred, and their commission ledger.
func (s *Service) ReferralSummary(ctx context.Context, userID uuid.UUID) (*domain.ReferralSummary, error) {
	user, err := s.repo.FindUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	directCount, err := s.repo.CountDirectReferrals(ctx, userID)
	if err != nil {
		return nil, err
	}

	commissions, err := s.repo.ListCommissionsByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	total := decimal.Zero
	for _, c := range commissions {
		total = total.Add(c.Amount)
	}

	return &domain.ReferralSummary{
		ReferralCode:    user.ReferralCode,
		DirectReferrals: directCount,
		TotalEarned:     total,
		Commissions:     commissions,
	}, nil
}

// requireAdmin verifies the acting user exists and carries admin rights.
func (s *Service) requireAdmin(ctx context.Context, actingAdminID uuid.UUID) error {
	admin, err := s.repo.FindUserByID(ctx, actingAdminID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return ErrUnauthorized
		}
		return err
	}
	if !admin.IsAdmin {
		return ErrUnauthorized
	}
	return nil
}
