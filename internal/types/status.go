package types

import (
	"context"
	"time"
)

// Status is the row lifecycle status used for soft deletion.
// Rows with StatusArchived are retained for audit but excluded from reads.
type Status string

const (
	StatusPublished Status = "published"
	StatusArchived  Status = "archived"
)

// BaseModel carries the audit columns shared by persisted entities
type BaseModel struct {
	Status    Status    `db:"status" json:"status"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
	CreatedBy string    `db:"created_by" json:"created_by"`
	UpdatedBy string    `db:"updated_by" json:"updated_by"`
}

func GetDefaultBaseModel(ctx context.Context) BaseModel {
	now := time.Now().UTC()
	return BaseModel{
		Status:    StatusPublished,
		CreatedAt: now,
		UpdatedAt: now,
		CreatedBy: GetUserID(ctx),
		UpdatedBy: GetUserID(ctx),
	}
}
