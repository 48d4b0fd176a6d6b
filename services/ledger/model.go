package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

type EntryType string

const (
	EntryPostPayment       EntryType = "POST_PAYMENT"
	EntryValidationEarning EntryType = "VALIDATION_EARNING"
	EntryCashout           EntryType = "CASHOUT"
	EntryBonus             EntryType = "BONUS"
)

type EntryStatus string

// Async payment rails are out of scope; every entry this core writes is
// already settled.
const EntryCompleted EntryStatus = "COMPLETED"

// Account is the user record. Balances are mutated only through
// Service.Apply; reputation and counters only through Service.ApplyStats.
type Account struct {
	ID                  string          `gorm:"column:id;primaryKey" json:"id"`
	DisplayName         string          `gorm:"column:display_name;not null" json:"display_name"`
	Email               string          `gorm:"column:email;uniqueIndex;not null" json:"email"`
	TotalBalance        decimal.Decimal `gorm:"column:total_balance;type:numeric(20,4);not null" json:"total_balance"`
	AvailableBalance    decimal.Decimal `gorm:"column:available_balance;type:numeric(20,4);not null" json:"available_balance"`
	OptedOutBalance     decimal.Decimal `gorm:"column:opted_out_balance;type:numeric(20,4);not null" json:"opted_out_balance"`
	ReputationScore     int             `gorm:"column:reputation_score;not null;default:0" json:"reputation_score"`
	TotalValidations    int             `gorm:"column:total_validations;not null;default:0" json:"total_validations"`
	TotalIdeasSubmitted int             `gorm:"column:total_ideas_submitted;not null;default:0" json:"total_ideas_submitted"`
	CreatedAt           time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Account) TableName() string { return "accounts" }

// Spendable is the slice of the available balance not protected by opt-out.
func (a *Account) Spendable() decimal.Decimal {
	return a.AvailableBalance.Sub(a.OptedOutBalance)
}

// Entry is one append-only ledger record. For any account the sum of entry
// amounts equals the net change of its total balance since creation.
type Entry struct {
	ID           string          `gorm:"column:id;primaryKey" json:"id"`
	AccountID    string          `gorm:"column:account_id;index;not null" json:"account_id"`
	Amount       decimal.Decimal `gorm:"column:amount;type:numeric(20,4);not null" json:"amount"`
	Type         EntryType       `gorm:"column:type;not null" json:"type"`
	Status       EntryStatus     `gorm:"column:status;not null" json:"status"`
	ValidationID *string         `gorm:"column:validation_id;index" json:"validation_id,omitempty"`
	Description  string          `gorm:"column:description" json:"description"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (Entry) TableName() string { return "ledger_entries" }

// Mutation describes one balance movement. Negative amounts are spends and
// are rejected when they would push the spendable balance below zero.
type Mutation struct {
	AccountID    string
	Amount       decimal.Decimal
	Type         EntryType
	ValidationID *string
	Description  string
}
