package validation

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"ideapulse-marketplace/pkg/db/option"
	"ideapulse-marketplace/pkg/errutil"
	"ideapulse-marketplace/pkg/repository"
	"ideapulse-marketplace/services/ledger"
	"ideapulse-marketplace/services/post"
)

// Reputation adjustments per validation outcome.
const (
	reputationValidation = 1
	reputationApproval   = 5
	reputationRejection  = -2
)

type Service struct {
	db     *gorm.DB
	node   *snowflake.Node
	ledger *ledger.Service

	validations repository.Repository[Validation]
	posts       repository.Repository[post.Post]
}

type ServiceParams struct {
	fx.In
	DB     *gorm.DB
	Node   *snowflake.Node
	Ledger *ledger.Service
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:     p.DB,
		node:   p.Node,
		ledger: p.Ledger,

		validations: repository.ProvideStore[Validation](p.DB),
		posts:       repository.ProvideStore[post.Post](p.DB),
	}
}

type SubmitRequest struct {
	PostID  string       `json:"-"`
	Type    Type         `json:"type" binding:"required"`
	Comment string       `json:"comment"`
	Answers post.Answers `json:"answers"`
}

// Submit admits and settles one validation attempt. The whole sequence runs
// in a single transaction against the locked post row: admission checks,
// validation insert, balance movements, counter increment and the auto-close
// check all commit together or not at all.
func (s *Service) Submit(ctx context.Context, validatorID string, req SubmitRequest) (*Validation, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	if req.Type != TypeNormal && req.Type != TypeDetailed {
		return nil, errutil.ValidationFailed("type must be NORMAL or DETAILED", nil)
	}

	var v *Validation

	err := s.db.Transaction(func(tx *gorm.DB) error {
		existing, err := s.validations.WithTrx(tx).FindOne(ctx, &Validation{
			PostID:      req.PostID,
			ValidatorID: validatorID,
		})
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrAlreadyValidated()
		}

		p, err := s.posts.WithTrx(tx).FindOne(ctx, &post.Post{ID: req.PostID}, option.WithLockingUpdate())
		if err != nil {
			return err
		}
		if p == nil {
			return post.ErrPostNotFound()
		}
		if p.AuthorID == validatorID {
			return ErrSelfValidation()
		}
		if !p.AcceptingValidations(time.Now()) {
			return post.ErrPostNotOpen()
		}

		switch req.Type {
		case TypeNormal:
			if p.CurrentNormalCount >= p.NormalValidatorCount {
				return ErrTierFull()
			}
			v, err = s.submitNormal(ctx, tx, validatorID, p, req)
		case TypeDetailed:
			if p.CurrentDetailedCount >= p.DetailedValidatorCount {
				return ErrTierFull()
			}
			v, err = s.submitDetailed(ctx, tx, validatorID, p, req)
		}
		return err
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrAlreadyValidated()
		}
		return nil, err
	}

	zap.L().Info("validation submitted",
		zap.String("validation_id", v.ID),
		zap.String("post_id", v.PostID),
		zap.String("validator_id", validatorID),
		zap.String("type", string(v.Type)),
	)

	return v, nil
}

// submitNormal settles immediately: the validation is born COMPLETED and
// paid, the validator earns the reward and the author is debited the same
// amount on top of the escrow captured at post creation.
func (s *Service) submitNormal(ctx context.Context, tx *gorm.DB, validatorID string, p *post.Post, req SubmitRequest) (*Validation, error) {
	now := time.Now()
	v := &Validation{
		ID:           s.node.Generate().String(),
		PostID:       p.ID,
		ValidatorID:  validatorID,
		Type:         TypeNormal,
		Status:       StatusCompleted,
		RewardAmount: p.NormalReward,
		IsPaid:       true,
		Comment:      req.Comment,
		ReviewedAt:   &now,
	}
	if err := s.validations.WithTrx(tx).Create(ctx, v); err != nil {
		return nil, err
	}

	if _, err := s.ledger.Apply(ctx, tx, ledger.Mutation{
		AccountID:    validatorID,
		Amount:       v.RewardAmount,
		Type:         ledger.EntryValidationEarning,
		ValidationID: &v.ID,
		Description:  "reward for validating: " + p.Title,
	}); err != nil {
		return nil, err
	}

	if _, err := s.ledger.Apply(ctx, tx, ledger.Mutation{
		AccountID:    p.AuthorID,
		Amount:       v.RewardAmount.Neg(),
		Type:         ledger.EntryPostPayment,
		ValidationID: &v.ID,
		Description:  "payout for validation of: " + p.Title,
	}); err != nil {
		return nil, err
	}

	if err := s.ledger.ApplyStats(ctx, tx, validatorID, ledger.StatsDelta{
		Reputation:  reputationValidation,
		Validations: 1,
	}); err != nil {
		return nil, err
	}

	if err := s.bumpCounter(ctx, tx, p, p.CurrentNormalCount+1, p.CurrentDetailedCount); err != nil {
		return nil, err
	}

	return v, nil
}

// submitDetailed holds the reward pending the author's review: no money
// moves until Approve.
func (s *Service) submitDetailed(ctx context.Context, tx *gorm.DB, validatorID string, p *post.Post, req SubmitRequest) (*Validation, error) {
	schema, err := post.ParseSchema(p.FormSchema)
	if err != nil {
		return nil, errutil.Internal("stored form schema is unreadable", err)
	}
	if err := req.Answers.Validate(schema); err != nil {
		return nil, err
	}

	answersJSON, err := req.Answers.JSON()
	if err != nil {
		return nil, errutil.ValidationFailed("invalid answers payload", err)
	}

	v := &Validation{
		ID:           s.node.Generate().String(),
		PostID:       p.ID,
		ValidatorID:  validatorID,
		Type:         TypeDetailed,
		Status:       StatusPending,
		RewardAmount: p.DetailedReward,
		Comment:      req.Comment,
		Answers:      answersJSON,
	}
	if err := s.validations.WithTrx(tx).Create(ctx, v); err != nil {
		return nil, err
	}

	if err := s.ledger.ApplyStats(ctx, tx, validatorID, ledger.StatsDelta{Validations: 1}); err != nil {
		return nil, err
	}

	if err := s.bumpCounter(ctx, tx, p, p.CurrentNormalCount, p.CurrentDetailedCount+1); err != nil {
		return nil, err
	}

	return v, nil
}

// bumpCounter writes the post-admission counters and closes the post in the
// same statement once both tiers are full. Counters come from the locked row,
// so the close decision sees the increment that triggered it.
func (s *Service) bumpCounter(ctx context.Context, tx *gorm.DB, p *post.Post, normal, detailed int) error {
	updates := map[string]any{
		"current_normal_count":   normal,
		"current_detailed_count": detailed,
		"updated_at":             time.Now(),
	}
	if normal >= p.NormalValidatorCount && detailed >= p.DetailedValidatorCount {
		updates["status"] = post.StatusClosed
	}
	return s.posts.WithTrx(tx).Update(ctx, p.ID, updates)
}

// Approve releases a held detailed reward: PENDING→APPROVED, the validator is
// paid from the escrow captured at post creation, and earns the approval
// bonus.
func (s *Service) Approve(ctx context.Context, approverID, id string) (*Validation, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	var v *Validation

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		v, err = s.reviewable(ctx, tx, approverID, id, StatusApproved)
		if err != nil {
			return err
		}

		now := time.Now()
		if err := s.validations.WithTrx(tx).Update(ctx, v.ID, map[string]any{
			"status":      StatusApproved,
			"is_paid":     true,
			"reviewed_at": now,
			"updated_at":  now,
		}); err != nil {
			return err
		}
		v.Status = StatusApproved
		v.IsPaid = true
		v.ReviewedAt = &now

		if _, err := s.ledger.Apply(ctx, tx, ledger.Mutation{
			AccountID:    v.ValidatorID,
			Amount:       v.RewardAmount,
			Type:         ledger.EntryValidationEarning,
			ValidationID: &v.ID,
			Description:  "approved detailed validation reward",
		}); err != nil {
			return err
		}

		return s.ledger.ApplyStats(ctx, tx, v.ValidatorID, ledger.StatsDelta{
			Reputation: reputationApproval,
		})
	})
	if err != nil {
		return nil, err
	}

	return v, nil
}

// Reject closes a held detailed validation without payment and applies the
// reputation penalty.
func (s *Service) Reject(ctx context.Context, approverID, id, reason string) (*Validation, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	var v *Validation

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		v, err = s.reviewable(ctx, tx, approverID, id, StatusRejected)
		if err != nil {
			return err
		}

		now := time.Now()
		if err := s.validations.WithTrx(tx).Update(ctx, v.ID, map[string]any{
			"status":        StatusRejected,
			"reject_reason": reason,
			"reviewed_at":   now,
			"updated_at":    now,
		}); err != nil {
			return err
		}
		v.Status = StatusRejected
		v.RejectReason = reason
		v.ReviewedAt = &now

		return s.ledger.ApplyStats(ctx, tx, v.ValidatorID, ledger.StatsDelta{
			Reputation: reputationRejection,
		})
	})
	if err != nil {
		return nil, err
	}

	return v, nil
}

// reviewable loads the validation under lock and runs the shared review
// guards: it must exist, the reviewer must be the post author, and the
// requested transition must be legal.
func (s *Service) reviewable(ctx context.Context, tx *gorm.DB, approverID, id string, to Status) (*Validation, error) {
	v, err := s.validations.WithTrx(tx).FindOne(ctx, &Validation{ID: id}, option.WithLockingUpdate())
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, ErrValidationNotFound()
	}

	p, err := s.posts.WithTrx(tx).FindOne(ctx, &post.Post{ID: v.PostID})
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, post.ErrPostNotFound()
	}
	if p.AuthorID != approverID {
		return nil, ErrNotAuthor()
	}

	if !canTransition(v.Status, to) {
		return nil, ErrNotPending()
	}

	return v, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Validation, error) {
	v, err := s.validations.FindOne(ctx, &Validation{ID: id})
	if err != nil {
		zap.L().Error("failed to query validation", zap.String("validation_id", id), zap.Error(err))
		return nil, err
	}
	if v == nil {
		return nil, ErrValidationNotFound()
	}
	return v, nil
}

func (s *Service) ListForPost(ctx context.Context, postID string) ([]*Validation, error) {
	return s.validations.Find(ctx, &Validation{PostID: postID}, option.WithSortBy(option.QuerySortBy{
		SortBy:  "created_at",
		OrderBy: "desc",
		Allow:   map[string]bool{"created_at": true},
	}))
}
