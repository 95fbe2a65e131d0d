package types

import (
	"fmt"
	"time"

	"github.com/samber/lo"
)

const (
	FILTER_DEFAULT_LIMIT = 50
	FILTER_MAX_LIMIT     = 1000

	OrderDesc = "desc"
	OrderAsc  = "asc"
)

// BaseFilter defines common filtering capabilities
type BaseFilter interface {
	GetLimit() int
	GetOffset() int
	GetOrder() string
	Validate() error
	IsUnlimited() bool
}

// QueryFilter represents a generic query filter with optional fields
type QueryFilter struct {
	Limit  *int    `json:"limit,omitempty" form:"limit" validate:"omitempty,min=1,max=1000"`
	Offset *int    `json:"offset,omitempty" form:"offset" validate:"omitempty,min=0"`
	Order  *string `json:"order,omitempty" form:"order" validate:"omitempty,oneof=asc desc"`
}

// NewDefaultQueryFilter returns a filter with the default page size
func NewDefaultQueryFilter() *QueryFilter {
	return &QueryFilter{
		Limit:  lo.ToPtr(FILTER_DEFAULT_LIMIT),
		Offset: lo.ToPtr(0),
		Order:  lo.ToPtr(OrderDesc),
	}
}

// NewNoLimitQueryFilter returns a filter with no pagination limits
func NewNoLimitQueryFilter() *QueryFilter {
	return &QueryFilter{
		Offset: lo.ToPtr(0),
		Order:  lo.ToPtr(OrderAsc),
	}
}

// IsUnlimited returns true if this is an unlimited query
func (f QueryFilter) IsUnlimited() bool {
	return f.Limit == nil
}

func (f QueryFilter) GetLimit() int {
	if f.Limit == nil {
		return 0
	}
	return *f.Limit
}

func (f QueryFilter) GetOffset() int {
	if f.Offset == nil {
		return 0
	}
	return *f.Offset
}

func (f QueryFilter) GetOrder() string {
	if f.Order == nil {
		return OrderDesc
	}
	return *f.Order
}

// Validate validates the filter fields
func (f QueryFilter) Validate() error {
	if f.Limit != nil && (*f.Limit < 1 || *f.Limit > FILTER_MAX_LIMIT) {
		return fmt.Errorf("limit must be between 1 and %d", FILTER_MAX_LIMIT)
	}
	if f.Offset != nil && *f.Offset < 0 {
		return fmt.Errorf("offset must be non-negative")
	}
	if f.Order != nil && *f.Order != OrderAsc && *f.Order != OrderDesc {
		return fmt.Errorf("order must be either 'asc' or 'desc'")
	}
	return nil
}

// TimeRangeFilter adds time range filtering capabilities
type TimeRangeFilter struct {
	StartTime *time.Time `json:"start_time,omitempty" form:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty" form:"end_time"`
}

// Validate validates the time range filter
func (f TimeRangeFilter) Validate() error {
	if f.StartTime != nil && f.EndTime != nil && f.EndTime.Before(*f.StartTime) {
		return fmt.Errorf("end_time must be after start_time")
	}
	return nil
}
