package validation

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Type string

const (
	TypeNormal   Type = "NORMAL"
	TypeDetailed Type = "DETAILED"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusApproved  Status = "APPROVED"
	StatusCompleted Status = "COMPLETED"
	StatusRejected  Status = "REJECTED"
)

// transitions is the full set of legal status changes after creation. Normal
// validations are born COMPLETED and never move again.
var transitions = map[Status]map[Status]bool{
	StatusPending: {
		StatusApproved: true,
		StatusRejected: true,
	},
}

func canTransition(from, to Status) bool {
	return transitions[from][to]
}

// Validation records one validator's contribution to one post. The composite
// unique index on (post_id, validator_id) makes the one-validation-per-post
// rule hold even when two submissions race past the admission checks.
type Validation struct {
	ID           string          `gorm:"column:id;primaryKey" json:"id"`
	PostID       string          `gorm:"column:post_id;uniqueIndex:idx_post_validator;not null" json:"post_id"`
	ValidatorID  string          `gorm:"column:validator_id;uniqueIndex:idx_post_validator;index;not null" json:"validator_id"`
	Type         Type            `gorm:"column:type;not null" json:"type"`
	Status       Status          `gorm:"column:status;index;not null" json:"status"`
	RewardAmount decimal.Decimal `gorm:"column:reward_amount;type:numeric(20,4);not null" json:"reward_amount"`
	IsPaid       bool            `gorm:"column:is_paid;not null;default:false" json:"is_paid"`
	Comment      string          `gorm:"column:comment" json:"comment,omitempty"`
	Answers      datatypes.JSON  `gorm:"column:answers" json:"answers,omitempty"`
	RejectReason string          `gorm:"column:reject_reason" json:"reject_reason,omitempty"`
	ReviewedAt   *time.Time      `gorm:"column:reviewed_at" json:"reviewed_at,omitempty"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Validation) TableName() string { return "validations" }
