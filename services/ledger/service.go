package ledger

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"ideapulse-marketplace/pkg/db/option"
	"ideapulse-marketplace/pkg/errutil"
	"ideapulse-marketplace/pkg/repository"
)

type Service struct {
	db   *gorm.DB
	node *snowflake.Node

	accounts repository.Repository[Account]
	entries  repository.Repository[Entry]
}

type ServiceParams struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:   p.DB,
		node: p.Node,

		accounts: repository.ProvideStore[Account](p.DB),
		entries:  repository.ProvideStore[Entry](p.DB),
	}
}

// Apply performs one balance movement inside the caller's transaction: the
// account row is re-read under lock, the signed amount lands on both the
// total and the available balance, and exactly one entry is appended. This
// is the only code path that touches balances, so the audit invariant is
// enforced here and nowhere else.
func (s *Service) Apply(ctx context.Context, tx *gorm.DB, m Mutation) (*Entry, error) {
	if tx == nil {
		return nil, errutil.Internal("ledger mutation requires an open transaction", nil)
	}

	accounts := s.accounts.WithTrx(tx)

	acct, err := accounts.FindOne(ctx, &Account{ID: m.AccountID}, option.WithLockingUpdate())
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, ErrAccountNotFound()
	}

	if m.Amount.IsNegative() && acct.Spendable().Add(m.Amount).IsNegative() {
		return nil, ErrInsufficientFunds()
	}

	updates := map[string]any{
		"total_balance":     acct.TotalBalance.Add(m.Amount),
		"available_balance": acct.AvailableBalance.Add(m.Amount),
		"updated_at":        time.Now(),
	}
	if err := accounts.Update(ctx, acct.ID, updates); err != nil {
		return nil, err
	}

	entry := &Entry{
		ID:           s.node.Generate().String(),
		AccountID:    m.AccountID,
		Amount:       m.Amount,
		Type:         m.Type,
		Status:       EntryCompleted,
		ValidationID: m.ValidationID,
		Description:  m.Description,
		CreatedAt:    time.Now(),
	}
	if err := s.entries.WithTrx(tx).Create(ctx, entry); err != nil {
		return nil, err
	}

	return entry, nil
}

// StatsDelta adjusts the non-monetary account fields. Reputation may go
// negative; the counters only grow.
type StatsDelta struct {
	Reputation  int
	Validations int
	Ideas       int
}

func (s *Service) ApplyStats(ctx context.Context, tx *gorm.DB, accountID string, d StatsDelta) error {
	if tx == nil {
		return errutil.Internal("stats mutation requires an open transaction", nil)
	}

	updates := map[string]any{"updated_at": time.Now()}
	if d.Reputation != 0 {
		updates["reputation_score"] = gorm.Expr("reputation_score + ?", d.Reputation)
	}
	if d.Validations != 0 {
		updates["total_validations"] = gorm.Expr("total_validations + ?", d.Validations)
	}
	if d.Ideas != 0 {
		updates["total_ideas_submitted"] = gorm.Expr("total_ideas_submitted + ?", d.Ideas)
	}

	return s.accounts.WithTrx(tx).Update(ctx, accountID, updates)
}

type CreateAccountRequest struct {
	DisplayName   string          `json:"display_name" binding:"required"`
	Email         string          `json:"email" binding:"required,email"`
	SignupCredit  decimal.Decimal `json:"signup_credit"`
	OptedOutFunds decimal.Decimal `json:"opted_out_funds"`
}

// CreateAccount registers a user record. A signup credit lands through Apply
// so the transaction trail covers it like any other movement.
func (s *Service) CreateAccount(ctx context.Context, req CreateAccountRequest) (*Account, error) {
	if strings.TrimSpace(req.DisplayName) == "" || strings.TrimSpace(req.Email) == "" {
		return nil, errutil.ValidationFailed("display_name and email are required", nil)
	}
	if req.SignupCredit.IsNegative() || req.OptedOutFunds.IsNegative() {
		return nil, errutil.ValidationFailed("signup_credit and opted_out_funds must not be negative", nil)
	}
	if req.OptedOutFunds.GreaterThan(req.SignupCredit) {
		return nil, errutil.ValidationFailed("opted_out_funds cannot exceed signup_credit", nil)
	}

	acct := &Account{
		ID:               s.node.Generate().String(),
		DisplayName:      req.DisplayName,
		Email:            req.Email,
		TotalBalance:     decimal.Zero,
		AvailableBalance: decimal.Zero,
		OptedOutBalance:  req.OptedOutFunds,
	}

	if err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.accounts.WithTrx(tx).Create(ctx, acct); err != nil {
			return err
		}

		if req.SignupCredit.IsPositive() {
			if _, err := s.Apply(ctx, tx, Mutation{
				AccountID:   acct.ID,
				Amount:      req.SignupCredit,
				Type:        EntryBonus,
				Description: "signup credit",
			}); err != nil {
				return err
			}
		}

		return nil
	}); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, errutil.Conflict("an account with this email already exists", err)
		}
		return nil, err
	}

	return s.getAccount(ctx, acct.ID)
}

func (s *Service) GetAccount(ctx context.Context, id string) (*Account, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	return s.getAccount(ctx, id)
}

func (s *Service) getAccount(ctx context.Context, id string) (*Account, error) {
	acct, err := s.accounts.FindOne(ctx, &Account{ID: id})
	if err != nil {
		zap.L().Error("failed to query account", zap.String("account_id", id), zap.Error(err))
		return nil, err
	}
	if acct == nil {
		return nil, ErrAccountNotFound()
	}
	return acct, nil
}

// ListEntries returns the account's transaction trail, newest first.
func (s *Service) ListEntries(ctx context.Context, accountID string) ([]*Entry, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	if _, err := s.getAccount(ctx, accountID); err != nil {
		return nil, err
	}

	entries, err := s.entries.Find(ctx, &Entry{AccountID: accountID}, option.WithSortBy(option.QuerySortBy{
		SortBy:  "created_at",
		OrderBy: "desc",
		Allow:   map[string]bool{"created_at": true},
	}))
	if err != nil {
		zap.L().Error("failed to query ledger entries", zap.String("account_id", accountID), zap.Error(err))
		return nil, err
	}

	return entries, nil
}
