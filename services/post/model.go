package post

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusOpen   Status = "OPEN"
	StatusClosed Status = "CLOSED"
)

// Post carries the monetary shape of an idea: an escrowed budget, a fixed
// reward and a validator cap per tier, and live per-tier counters. Rewards
// and caps are immutable after creation.
type Post struct {
	ID                     string          `gorm:"column:id;primaryKey" json:"id"`
	AuthorID               string          `gorm:"column:author_id;index;not null" json:"author_id"`
	Title                  string          `gorm:"column:title;not null" json:"title"`
	Category               string          `gorm:"column:category;index" json:"category"`
	Status                 Status          `gorm:"column:status;index;not null" json:"status"`
	ExpiryDate             time.Time       `gorm:"column:expiry_date;index;not null" json:"expiry_date"`
	NormalValidatorCount   int             `gorm:"column:normal_validator_count;not null" json:"normal_validator_count"`
	DetailedValidatorCount int             `gorm:"column:detailed_validator_count;not null" json:"detailed_validator_count"`
	CurrentNormalCount     int             `gorm:"column:current_normal_count;not null;default:0" json:"current_normal_count"`
	CurrentDetailedCount   int             `gorm:"column:current_detailed_count;not null;default:0" json:"current_detailed_count"`
	NormalReward           decimal.Decimal `gorm:"column:normal_reward;type:numeric(20,4);not null" json:"normal_reward"`
	DetailedReward         decimal.Decimal `gorm:"column:detailed_reward;type:numeric(20,4);not null" json:"detailed_reward"`
	TotalBudget            decimal.Decimal `gorm:"column:total_budget;type:numeric(20,4);not null" json:"total_budget"`
	FormSchema             datatypes.JSON  `gorm:"column:form_schema" json:"form_schema,omitempty"`
	CreatedAt              time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Post) TableName() string { return "posts" }

// AcceptingValidations reports whether the post can admit a new validation
// at the given time. An expired post rejects admissions even before the
// sweep flips its stored status.
func (p *Post) AcceptingValidations(now time.Time) bool {
	return p.Status == StatusOpen && p.ExpiryDate.After(now)
}

// Full reports whether both tiers have reached their caps.
func (p *Post) Full() bool {
	return p.CurrentNormalCount >= p.NormalValidatorCount &&
		p.CurrentDetailedCount >= p.DetailedValidatorCount
}
