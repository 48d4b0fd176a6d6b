package validation

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"ideapulse-marketplace/pkg/config"
	"ideapulse-marketplace/pkg/errutil"
	"ideapulse-marketplace/services/ledger"
	"ideapulse-marketplace/services/post"
	"ideapulse-marketplace/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fixture struct {
	db          *gorm.DB
	ledger      *ledger.Service
	posts       *post.Service
	validations *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.NewTestDB(t, &ledger.Account{}, &ledger.Entry{}, &post.Post{}, &Validation{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Sweep.BatchSize = 100

	ledgerSvc := ledger.NewService(ledger.ServiceParams{DB: db, Node: node})
	postSvc := post.NewService(post.ServiceParams{DB: db, Node: node, Config: cfg, Ledger: ledgerSvc})
	validationSvc := NewService(ServiceParams{DB: db, Node: node, Ledger: ledgerSvc})

	return &fixture{db: db, ledger: ledgerSvc, posts: postSvc, validations: validationSvc}
}

func (f *fixture) account(t *testing.T, email string, balance int64) *ledger.Account {
	t.Helper()

	acct, err := f.ledger.CreateAccount(context.Background(), ledger.CreateAccountRequest{
		DisplayName:  "User",
		Email:        email,
		SignupCredit: decimal.NewFromInt(balance),
	})
	require.NoError(t, err)
	return acct
}

func (f *fixture) post(t *testing.T, authorID string, normalCap, detailedCap int) *post.Post {
	t.Helper()

	req := post.CreatePostRequest{
		Title:                  "Subscription box for houseplants",
		Category:               "consumer",
		ExpiryDate:             time.Now().Add(72 * time.Hour),
		NormalValidatorCount:   normalCap,
		DetailedValidatorCount: detailedCap,
	}
	if normalCap > 0 {
		req.NormalReward = decimal.NewFromInt(5)
	}
	if detailedCap > 0 {
		req.DetailedReward = decimal.NewFromInt(10)
		req.FormSchema = post.Schema{
			{Name: "summary", Kind: post.FieldText, Required: true},
		}
	}
	req.TotalBudget = req.MinimumBudget()

	p, err := f.posts.Create(context.Background(), authorID, req)
	require.NoError(t, err)
	return p
}

func (f *fixture) balance(t *testing.T, accountID string) decimal.Decimal {
	t.Helper()

	acct, err := f.ledger.GetAccount(context.Background(), accountID)
	require.NoError(t, err)
	return acct.AvailableBalance
}

func strptr(s string) *string { return &s }

func detailedAnswers() post.Answers {
	return post.Answers{"summary": {Text: strptr("strong niche, weak margins")}}
}

func requireStatus(t *testing.T, err error, status errutil.CoreStatus) {
	t.Helper()

	var base errutil.BaseError
	require.ErrorAs(t, err, &base)
	require.Equal(t, status, base.Code)
}

// Post with two normal slots at reward 5 and an escrow of 20, author starts
// at 100: after posting the author holds 80, each settlement takes another 5,
// and the post closes on the second validation.
func TestNormalValidationScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	author := f.account(t, "author@example.com", 100)
	a := f.account(t, "a@example.com", 0)
	b := f.account(t, "b@example.com", 0)
	c := f.account(t, "c@example.com", 0)

	p, err := f.posts.Create(ctx, author.ID, post.CreatePostRequest{
		Title:                "Subscription box for houseplants",
		ExpiryDate:           time.Now().Add(72 * time.Hour),
		NormalValidatorCount: 2,
		NormalReward:         decimal.NewFromInt(5),
		TotalBudget:          decimal.NewFromInt(20),
	})
	require.NoError(t, err)
	require.True(t, f.balance(t, author.ID).Equal(decimal.NewFromInt(80)))

	v, err := f.validations.Submit(ctx, a.ID, SubmitRequest{
		PostID:  p.ID,
		Type:    TypeNormal,
		Comment: "love it",
	})
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, v.Status)
	require.True(t, v.IsPaid)
	require.True(t, v.RewardAmount.Equal(decimal.NewFromInt(5)))

	require.True(t, f.balance(t, a.ID).Equal(decimal.NewFromInt(5)))
	require.True(t, f.balance(t, author.ID).Equal(decimal.NewFromInt(75)))

	got, err := f.posts.Get(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, 1, got.CurrentNormalCount)
	require.Equal(t, post.StatusOpen, got.Status)

	validator, err := f.ledger.GetAccount(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, 1, validator.TotalValidations)
	require.Equal(t, 1, validator.ReputationScore)

	_, err = f.validations.Submit(ctx, b.ID, SubmitRequest{PostID: p.ID, Type: TypeNormal})
	require.NoError(t, err)

	got, err = f.posts.Get(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, 2, got.CurrentNormalCount)
	require.Equal(t, post.StatusClosed, got.Status)

	_, err = f.validations.Submit(ctx, c.ID, SubmitRequest{PostID: p.ID, Type: TypeNormal})
	requireStatus(t, err, errutil.StatusUnprocessableEntity)
}

func TestSelfValidationForbidden(t *testing.T) {
	f := newFixture(t)

	author := f.account(t, "self@example.com", 100)
	p := f.post(t, author.ID, 2, 0)

	_, err := f.validations.Submit(context.Background(), author.ID, SubmitRequest{
		PostID: p.ID,
		Type:   TypeNormal,
	})
	requireStatus(t, err, errutil.StatusForbidden)
}

func TestDoubleValidationSequential(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	author := f.account(t, "author2@example.com", 100)
	v := f.account(t, "repeat@example.com", 0)
	p := f.post(t, author.ID, 2, 1)

	_, err := f.validations.Submit(ctx, v.ID, SubmitRequest{PostID: p.ID, Type: TypeNormal})
	require.NoError(t, err)

	// Same pair again, even on the other tier.
	_, err = f.validations.Submit(ctx, v.ID, SubmitRequest{
		PostID:  p.ID,
		Type:    TypeDetailed,
		Answers: detailedAnswers(),
	})
	requireStatus(t, err, errutil.StatusConflict)
}

func TestDoubleValidationConcurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	author := f.account(t, "author3@example.com", 100)
	v := f.account(t, "racer@example.com", 0)
	p := f.post(t, author.ID, 2, 0)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.validations.Submit(ctx, v.ID, SubmitRequest{PostID: p.ID, Type: TypeNormal})
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
		} else {
			requireStatus(t, err, errutil.StatusConflict)
		}
	}
	require.Equal(t, 1, successes)

	require.True(t, f.balance(t, v.ID).Equal(decimal.NewFromInt(5)))
}

func TestTierCapEnforced(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	author := f.account(t, "author4@example.com", 1000)
	p := f.post(t, author.ID, 3, 1)

	for i := 0; i < 3; i++ {
		v := f.account(t, fmt.Sprintf("v%d@example.com", i), 0)
		_, err := f.validations.Submit(ctx, v.ID, SubmitRequest{PostID: p.ID, Type: TypeNormal})
		require.NoError(t, err)
	}

	extra := f.account(t, "extra@example.com", 0)
	_, err := f.validations.Submit(ctx, extra.ID, SubmitRequest{PostID: p.ID, Type: TypeNormal})
	requireStatus(t, err, errutil.StatusUnprocessableEntity)

	got, err := f.posts.Get(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, 3, got.CurrentNormalCount)
	// The detailed slot is still open, so the post is too.
	require.Equal(t, post.StatusOpen, got.Status)
}

func TestExpiredPostRejectsSubmission(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	author := f.account(t, "author5@example.com", 100)
	v := f.account(t, "late@example.com", 0)
	p := f.post(t, author.ID, 2, 0)

	err := f.db.Model(&post.Post{}).Where("id = ?", p.ID).
		Update("expiry_date", time.Now().Add(-time.Minute)).Error
	require.NoError(t, err)

	// The stored status is still OPEN; admission goes by the timestamp.
	_, err = f.validations.Submit(ctx, v.ID, SubmitRequest{PostID: p.ID, Type: TypeNormal})
	requireStatus(t, err, errutil.StatusUnprocessableEntity)
}

func TestSubmitUnknownPost(t *testing.T) {
	f := newFixture(t)

	v := f.account(t, "lost@example.com", 0)

	_, err := f.validations.Submit(context.Background(), v.ID, SubmitRequest{
		PostID: "missing",
		Type:   TypeNormal,
	})
	requireStatus(t, err, errutil.StatusNotFound)
}

func TestDetailedValidationHeldUntilApproval(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	author := f.account(t, "author6@example.com", 100)
	v := f.account(t, "detail@example.com", 0)
	p := f.post(t, author.ID, 0, 2)

	sub, err := f.validations.Submit(ctx, v.ID, SubmitRequest{
		PostID:  p.ID,
		Type:    TypeDetailed,
		Answers: detailedAnswers(),
	})
	require.NoError(t, err)
	require.Equal(t, StatusPending, sub.Status)
	require.False(t, sub.IsPaid)
	require.True(t, sub.RewardAmount.Equal(decimal.NewFromInt(10)))

	// No money moves until the author reviews.
	require.True(t, f.balance(t, v.ID).Equal(decimal.Zero))

	validator, err := f.ledger.GetAccount(ctx, v.ID)
	require.NoError(t, err)
	require.Equal(t, 1, validator.TotalValidations)
	require.Equal(t, 0, validator.ReputationScore)

	approved, err := f.validations.Approve(ctx, author.ID, sub.ID)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, approved.Status)
	require.True(t, approved.IsPaid)
	require.NotNil(t, approved.ReviewedAt)

	require.True(t, f.balance(t, v.ID).Equal(decimal.NewFromInt(10)))

	validator, err = f.ledger.GetAccount(ctx, v.ID)
	require.NoError(t, err)
	require.Equal(t, 5, validator.ReputationScore)
}

func TestDetailedValidationRequiresValidAnswers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	author := f.account(t, "author7@example.com", 100)
	v := f.account(t, "sloppy@example.com", 0)
	p := f.post(t, author.ID, 0, 1)

	_, err := f.validations.Submit(ctx, v.ID, SubmitRequest{
		PostID: p.ID,
		Type:   TypeDetailed,
	})
	requireStatus(t, err, errutil.StatusValidationFailed)

	// A failed admission holds no slot.
	got, err := f.posts.Get(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, 0, got.CurrentDetailedCount)
}

func TestApproveGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	author := f.account(t, "author8@example.com", 100)
	stranger := f.account(t, "stranger@example.com", 0)
	v := f.account(t, "worker@example.com", 0)
	p := f.post(t, author.ID, 0, 1)

	sub, err := f.validations.Submit(ctx, v.ID, SubmitRequest{
		PostID:  p.ID,
		Type:    TypeDetailed,
		Answers: detailedAnswers(),
	})
	require.NoError(t, err)

	_, err = f.validations.Approve(ctx, stranger.ID, sub.ID)
	requireStatus(t, err, errutil.StatusForbidden)

	_, err = f.validations.Approve(ctx, author.ID, "missing")
	requireStatus(t, err, errutil.StatusNotFound)

	_, err = f.validations.Approve(ctx, author.ID, sub.ID)
	require.NoError(t, err)

	// A second approval must not pay twice.
	_, err = f.validations.Approve(ctx, author.ID, sub.ID)
	requireStatus(t, err, errutil.StatusUnprocessableEntity)
	require.True(t, f.balance(t, v.ID).Equal(decimal.NewFromInt(10)))
}

func TestRejectAppliesPenalty(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	author := f.account(t, "author9@example.com", 100)
	v := f.account(t, "unlucky@example.com", 0)
	p := f.post(t, author.ID, 0, 1)

	sub, err := f.validations.Submit(ctx, v.ID, SubmitRequest{
		PostID:  p.ID,
		Type:    TypeDetailed,
		Answers: detailedAnswers(),
	})
	require.NoError(t, err)

	rejected, err := f.validations.Reject(ctx, author.ID, sub.ID, "answers are off-topic")
	require.NoError(t, err)
	require.Equal(t, StatusRejected, rejected.Status)
	require.Equal(t, "answers are off-topic", rejected.RejectReason)
	require.False(t, rejected.IsPaid)

	require.True(t, f.balance(t, v.ID).Equal(decimal.Zero))

	validator, err := f.ledger.GetAccount(ctx, v.ID)
	require.NoError(t, err)
	require.Equal(t, -2, validator.ReputationScore)

	// Rejected is terminal.
	_, err = f.validations.Approve(ctx, author.ID, sub.ID)
	requireStatus(t, err, errutil.StatusUnprocessableEntity)
}

func TestNormalValidationIsTerminal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	author := f.account(t, "author10@example.com", 100)
	v := f.account(t, "done@example.com", 0)
	p := f.post(t, author.ID, 2, 0)

	sub, err := f.validations.Submit(ctx, v.ID, SubmitRequest{PostID: p.ID, Type: TypeNormal})
	require.NoError(t, err)

	_, err = f.validations.Approve(ctx, author.ID, sub.ID)
	requireStatus(t, err, errutil.StatusUnprocessableEntity)

	_, err = f.validations.Reject(ctx, author.ID, sub.ID, "nope")
	requireStatus(t, err, errutil.StatusUnprocessableEntity)
}

func TestAutoCloseAcrossTiers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	author := f.account(t, "author11@example.com", 100)
	n := f.account(t, "n@example.com", 0)
	d := f.account(t, "d@example.com", 0)
	p := f.post(t, author.ID, 1, 1)

	_, err := f.validations.Submit(ctx, n.ID, SubmitRequest{PostID: p.ID, Type: TypeNormal})
	require.NoError(t, err)

	got, err := f.posts.Get(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, post.StatusOpen, got.Status)

	_, err = f.validations.Submit(ctx, d.ID, SubmitRequest{
		PostID:  p.ID,
		Type:    TypeDetailed,
		Answers: detailedAnswers(),
	})
	require.NoError(t, err)

	got, err = f.posts.Get(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, post.StatusClosed, got.Status)

	// Approval still works on a closed post; the reward was escrowed.
	pending, err := f.validations.ListForPost(ctx, p.ID)
	require.NoError(t, err)
	for _, sub := range pending {
		if sub.Status == StatusPending {
			_, err = f.validations.Approve(ctx, author.ID, sub.ID)
			require.NoError(t, err)
		}
	}
	require.True(t, f.balance(t, d.ID).Equal(decimal.NewFromInt(10)))
}

func TestSubmitRejectsUnknownType(t *testing.T) {
	f := newFixture(t)

	v := f.account(t, "typo@example.com", 0)

	_, err := f.validations.Submit(context.Background(), v.ID, SubmitRequest{
		PostID: "whatever",
		Type:   Type("EXPRESS"),
	})
	requireStatus(t, err, errutil.StatusValidationFailed)
}

func TestGetValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	author := f.account(t, "author12@example.com", 100)
	v := f.account(t, "reader@example.com", 0)
	p := f.post(t, author.ID, 1, 0)

	sub, err := f.validations.Submit(ctx, v.ID, SubmitRequest{PostID: p.ID, Type: TypeNormal, Comment: "neat"})
	require.NoError(t, err)

	got, err := f.validations.Get(ctx, sub.ID)
	require.NoError(t, err)
	require.Equal(t, "neat", got.Comment)

	_, err = f.validations.Get(ctx, "missing")
	requireStatus(t, err, errutil.StatusNotFound)
}
