package post

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"ideapulse-marketplace/pkg/config"
	"ideapulse-marketplace/pkg/db/option"
	"ideapulse-marketplace/pkg/errutil"
	"ideapulse-marketplace/pkg/repository"
	"ideapulse-marketplace/services/ledger"
)

type Service struct {
	db     *gorm.DB
	node   *snowflake.Node
	cfg    *config.Config
	ledger *ledger.Service

	posts repository.Repository[Post]
}

type ServiceParams struct {
	fx.In
	DB     *gorm.DB
	Node   *snowflake.Node
	Config *config.Config
	Ledger *ledger.Service
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:     p.DB,
		node:   p.Node,
		cfg:    p.Config,
		ledger: p.Ledger,

		posts: repository.ProvideStore[Post](p.DB),
	}
}

type CreatePostRequest struct {
	Title                  string          `json:"title" binding:"required"`
	Category               string          `json:"category"`
	ExpiryDate             time.Time       `json:"expiry_date" binding:"required"`
	NormalValidatorCount   int             `json:"normal_validator_count"`
	DetailedValidatorCount int             `json:"detailed_validator_count"`
	NormalReward           decimal.Decimal `json:"normal_reward"`
	DetailedReward         decimal.Decimal `json:"detailed_reward"`
	TotalBudget            decimal.Decimal `json:"total_budget"`
	FormSchema             Schema          `json:"form_schema"`
}

// MinimumBudget is the floor for the escrow: every validation slot must be
// funded up front. Authors may escrow more.
func (r CreatePostRequest) MinimumBudget() decimal.Decimal {
	normal := r.NormalReward.Mul(decimal.NewFromInt(int64(r.NormalValidatorCount)))
	detailed := r.DetailedReward.Mul(decimal.NewFromInt(int64(r.DetailedValidatorCount)))
	return normal.Add(detailed)
}

func (r CreatePostRequest) validate(now time.Time) error {
	if strings.TrimSpace(r.Title) == "" {
		return errutil.ValidationFailed("title is required", nil)
	}
	if !r.ExpiryDate.After(now) {
		return errutil.ValidationFailed("expiry_date must be in the future", nil)
	}
	if r.NormalValidatorCount < 0 || r.DetailedValidatorCount < 0 {
		return errutil.ValidationFailed("validator counts must not be negative", nil)
	}
	if r.NormalValidatorCount == 0 && r.DetailedValidatorCount == 0 {
		return errutil.ValidationFailed("at least one validation slot is required", nil)
	}
	if r.NormalValidatorCount > 0 && !r.NormalReward.IsPositive() {
		return errutil.ValidationFailed("normal_reward must be positive", nil)
	}
	if r.DetailedValidatorCount > 0 && !r.DetailedReward.IsPositive() {
		return errutil.ValidationFailed("detailed_reward must be positive", nil)
	}
	if r.NormalReward.IsNegative() || r.DetailedReward.IsNegative() {
		return errutil.ValidationFailed("rewards must not be negative", nil)
	}
	if r.TotalBudget.LessThan(r.MinimumBudget()) {
		return errutil.ValidationFailed("total_budget must cover every validation slot", nil)
	}
	if r.DetailedValidatorCount > 0 && len(r.FormSchema) == 0 {
		return errutil.ValidationFailed("detailed validations require a form schema", nil)
	}
	return r.FormSchema.Validate()
}

// Create validates the request, then reserves the full budget and persists
// the post in one transaction. The escrow debit fails the whole creation when
// the author cannot cover the budget, so no post ever exists unfunded.
func (s *Service) Create(ctx context.Context, authorID string, req CreatePostRequest) (*Post, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	now := time.Now()
	if err := req.validate(now); err != nil {
		return nil, err
	}

	schemaJSON, err := req.FormSchema.JSON()
	if err != nil {
		return nil, errutil.ValidationFailed("invalid form schema", err)
	}

	p := &Post{
		ID:                     s.node.Generate().String(),
		AuthorID:               authorID,
		Title:                  req.Title,
		Category:               req.Category,
		Status:                 StatusOpen,
		ExpiryDate:             req.ExpiryDate,
		NormalValidatorCount:   req.NormalValidatorCount,
		DetailedValidatorCount: req.DetailedValidatorCount,
		NormalReward:           req.NormalReward,
		DetailedReward:         req.DetailedReward,
		TotalBudget:            req.TotalBudget,
		FormSchema:             schemaJSON,
	}

	if err := s.db.Transaction(func(tx *gorm.DB) error {
		if _, err := s.ledger.Apply(ctx, tx, ledger.Mutation{
			AccountID:   authorID,
			Amount:      p.TotalBudget.Neg(),
			Type:        ledger.EntryPostPayment,
			Description: "budget reserved for idea: " + p.Title,
		}); err != nil {
			return err
		}

		if err := s.ledger.ApplyStats(ctx, tx, authorID, ledger.StatsDelta{Ideas: 1}); err != nil {
			return err
		}

		return s.posts.WithTrx(tx).Create(ctx, p)
	}); err != nil {
		return nil, err
	}

	zap.L().Info("post created",
		zap.String("post_id", p.ID),
		zap.String("author_id", authorID),
		zap.String("total_budget", p.TotalBudget.String()),
	)

	return p, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Post, error) {
	p, err := s.posts.FindOne(ctx, &Post{ID: id})
	if err != nil {
		zap.L().Error("failed to query post", zap.String("post_id", id), zap.Error(err))
		return nil, err
	}
	if p == nil {
		return nil, ErrPostNotFound()
	}
	return p, nil
}

type ListFilter struct {
	AuthorID string
	Category string
	Status   Status
	Limit    int
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]*Post, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	query := &Post{
		AuthorID: f.AuthorID,
		Category: f.Category,
		Status:   f.Status,
	}

	opts := []option.QueryOption{
		option.WithSortBy(option.QuerySortBy{
			SortBy:  "created_at",
			OrderBy: "desc",
			Allow:   map[string]bool{"created_at": true, "expiry_date": true},
		}),
	}
	if f.Limit > 0 {
		opts = append(opts, option.WithLimit(f.Limit))
	}

	posts, err := s.posts.Find(ctx, query, opts...)
	if err != nil {
		zap.L().Error("failed to list posts", zap.Error(err))
		return nil, err
	}
	return posts, nil
}

// CloseExpired flips open posts past their expiry date to CLOSED, in batches
// so a large backlog never holds one long transaction. Admission already
// rejects expired posts by timestamp, so the sweep only reconciles the stored
// status.
func (s *Service) CloseExpired(ctx context.Context) (int, error) {
	batch := s.cfg.Sweep.BatchSize
	closed := 0

	for {
		expired, err := s.posts.Find(ctx, &Post{Status: StatusOpen},
			option.ApplyOperator(option.Condition{Field: "expiry_date", Operator: option.LTE, Value: time.Now()}),
			option.WithLimit(batch),
		)
		if err != nil {
			return closed, err
		}
		if len(expired) == 0 {
			return closed, nil
		}

		ids := make([]string, 0, len(expired))
		for _, p := range expired {
			ids = append(ids, p.ID)
		}

		err = s.db.WithContext(ctx).
			Model(&Post{}).
			Where("id IN ?", ids).
			Updates(map[string]any{"status": StatusClosed, "updated_at": time.Now()}).Error
		if err != nil {
			return closed, err
		}

		closed += len(ids)
		if len(ids) < batch {
			return closed, nil
		}
	}
}
