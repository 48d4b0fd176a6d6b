package ledger

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"ideapulse-marketplace/pkg/errutil"
	"ideapulse-marketplace/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()

	db := testutil.NewTestDB(t, &Account{}, &Entry{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return NewService(ServiceParams{DB: db, Node: node}), db
}

func mustAccount(t *testing.T, svc *Service, email string, credit decimal.Decimal) *Account {
	t.Helper()

	acct, err := svc.CreateAccount(context.Background(), CreateAccountRequest{
		DisplayName:  "Test User",
		Email:        email,
		SignupCredit: credit,
	})
	require.NoError(t, err)
	return acct
}

func requireStatus(t *testing.T, err error, status errutil.CoreStatus) {
	t.Helper()

	var base errutil.BaseError
	require.ErrorAs(t, err, &base)
	require.Equal(t, status, base.Code)
}

func TestCreateAccountWithSignupCredit(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	acct := mustAccount(t, svc, "alice@example.com", decimal.NewFromInt(100))
	require.True(t, acct.TotalBalance.Equal(decimal.NewFromInt(100)))
	require.True(t, acct.AvailableBalance.Equal(decimal.NewFromInt(100)))

	entries, err := svc.ListEntries(ctx, acct.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, EntryBonus, entries[0].Type)
	require.True(t, entries[0].Amount.Equal(decimal.NewFromInt(100)))
}

func TestCreateAccountDuplicateEmail(t *testing.T) {
	svc, _ := newTestService(t)

	mustAccount(t, svc, "dup@example.com", decimal.Zero)

	_, err := svc.CreateAccount(context.Background(), CreateAccountRequest{
		DisplayName: "Other",
		Email:       "dup@example.com",
	})
	requireStatus(t, err, errutil.StatusConflict)
}

func TestApplyCreditAndDebit(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	acct := mustAccount(t, svc, "bob@example.com", decimal.NewFromInt(50))

	err := db.Transaction(func(tx *gorm.DB) error {
		_, err := svc.Apply(ctx, tx, Mutation{
			AccountID:   acct.ID,
			Amount:      decimal.NewFromInt(-20),
			Type:        EntryPostPayment,
			Description: "spend",
		})
		return err
	})
	require.NoError(t, err)

	got, err := svc.GetAccount(ctx, acct.ID)
	require.NoError(t, err)
	require.True(t, got.TotalBalance.Equal(decimal.NewFromInt(30)))
	require.True(t, got.AvailableBalance.Equal(decimal.NewFromInt(30)))
}

func TestApplyRequiresTransaction(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Apply(context.Background(), nil, Mutation{AccountID: "x"})
	requireStatus(t, err, errutil.StatusInternal)
}

func TestApplyInsufficientFunds(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	acct := mustAccount(t, svc, "poor@example.com", decimal.NewFromInt(10))

	err := db.Transaction(func(tx *gorm.DB) error {
		_, err := svc.Apply(ctx, tx, Mutation{
			AccountID: acct.ID,
			Amount:    decimal.NewFromInt(-11),
			Type:      EntryPostPayment,
		})
		return err
	})
	requireStatus(t, err, errutil.StatusUnprocessableEntity)

	// The aborted transaction must leave no trace.
	got, err := svc.GetAccount(ctx, acct.ID)
	require.NoError(t, err)
	require.True(t, got.AvailableBalance.Equal(decimal.NewFromInt(10)))

	entries, err := svc.ListEntries(ctx, acct.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1) // only the signup credit
}

func TestApplyProtectsOptedOutBalance(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	acct, err := svc.CreateAccount(ctx, CreateAccountRequest{
		DisplayName:   "Protected",
		Email:         "protected@example.com",
		SignupCredit:  decimal.NewFromInt(100),
		OptedOutFunds: decimal.NewFromInt(40),
	})
	require.NoError(t, err)
	require.True(t, acct.Spendable().Equal(decimal.NewFromInt(60)))

	err = db.Transaction(func(tx *gorm.DB) error {
		_, err := svc.Apply(ctx, tx, Mutation{
			AccountID: acct.ID,
			Amount:    decimal.NewFromInt(-61),
			Type:      EntryPostPayment,
		})
		return err
	})
	requireStatus(t, err, errutil.StatusUnprocessableEntity)

	err = db.Transaction(func(tx *gorm.DB) error {
		_, err := svc.Apply(ctx, tx, Mutation{
			AccountID: acct.ID,
			Amount:    decimal.NewFromInt(-60),
			Type:      EntryPostPayment,
		})
		return err
	})
	require.NoError(t, err)
}

func TestApplyUnknownAccount(t *testing.T) {
	svc, db := newTestService(t)

	err := db.Transaction(func(tx *gorm.DB) error {
		_, err := svc.Apply(context.Background(), tx, Mutation{
			AccountID: "missing",
			Amount:    decimal.NewFromInt(1),
			Type:      EntryBonus,
		})
		return err
	})
	requireStatus(t, err, errutil.StatusNotFound)
}

// The transaction trail must account for every unit of balance movement: for
// any account, the sum of its entries equals the net change of its total
// balance.
func TestEntrySumMatchesBalance(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	acct := mustAccount(t, svc, "audit@example.com", decimal.NewFromInt(100))

	amounts := []int64{-30, 12, -5, 40}
	for _, amt := range amounts {
		err := db.Transaction(func(tx *gorm.DB) error {
			_, err := svc.Apply(ctx, tx, Mutation{
				AccountID: acct.ID,
				Amount:    decimal.NewFromInt(amt),
				Type:      EntryValidationEarning,
			})
			return err
		})
		require.NoError(t, err)
	}

	got, err := svc.GetAccount(ctx, acct.ID)
	require.NoError(t, err)

	entries, err := svc.ListEntries(ctx, acct.ID)
	require.NoError(t, err)

	sum := decimal.Zero
	for _, e := range entries {
		sum = sum.Add(e.Amount)
	}
	require.True(t, sum.Equal(got.TotalBalance), "entry sum %s != total balance %s", sum, got.TotalBalance)
}

func TestApplyStats(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	acct := mustAccount(t, svc, "stats@example.com", decimal.Zero)

	err := db.Transaction(func(tx *gorm.DB) error {
		return svc.ApplyStats(ctx, tx, acct.ID, StatsDelta{Reputation: -2, Validations: 1, Ideas: 3})
	})
	require.NoError(t, err)

	got, err := svc.GetAccount(ctx, acct.ID)
	require.NoError(t, err)
	require.Equal(t, -2, got.ReputationScore)
	require.Equal(t, 1, got.TotalValidations)
	require.Equal(t, 3, got.TotalIdeasSubmitted)
}

func TestGetAccountNotFound(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.GetAccount(context.Background(), "missing")
	requireStatus(t, err, errutil.StatusNotFound)
}

func TestCreateAccountValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateAccount(ctx, CreateAccountRequest{Email: "noname@example.com"})
	requireStatus(t, err, errutil.StatusValidationFailed)

	_, err = svc.CreateAccount(ctx, CreateAccountRequest{
		DisplayName:  "Neg",
		Email:        "neg@example.com",
		SignupCredit: decimal.NewFromInt(-1),
	})
	requireStatus(t, err, errutil.StatusValidationFailed)

	_, err = svc.CreateAccount(ctx, CreateAccountRequest{
		DisplayName:   "Over",
		Email:         "over@example.com",
		SignupCredit:  decimal.NewFromInt(10),
		OptedOutFunds: decimal.NewFromInt(11),
	})
	requireStatus(t, err, errutil.StatusValidationFailed)
}
