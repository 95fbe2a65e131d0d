package errors

import (
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/errors"
)

// ErrorBuilder chains context onto an error before it is marked with one of
// the sentinels above. It is not an error itself: finish with Mark, or with
// Error when no sentinel applies.
//
//	ierr.NewErrorf("workspace %s is suspended", id).
//		WithHint("Recharge credits to resume service").
//		Mark(ierr.ErrInvalidOperation)
type ErrorBuilder struct {
	err error
}

func NewError(msg string) *ErrorBuilder {
	return &ErrorBuilder{err: errors.New(msg)}
}

func NewErrorf(format string, args ...any) *ErrorBuilder {
	return &ErrorBuilder{err: errors.Newf(format, args...)}
}

// WithError wraps an error returned by a driver or collaborator
func WithError(err error) *ErrorBuilder {
	return &ErrorBuilder{err: err}
}

// WithMessage prefixes the internal message. It never reaches API clients.
func (b *ErrorBuilder) WithMessage(msg string) *ErrorBuilder {
	b.err = errors.WithMessage(b.err, msg)
	return b
}

func (b *ErrorBuilder) WithMessagef(format string, args ...any) *ErrorBuilder {
	return b.WithMessage(fmt.Sprintf(format, args...))
}

// WithHint sets the message shown to API clients, see DisplayMessage
func (b *ErrorBuilder) WithHint(hint string) *ErrorBuilder {
	b.err = errors.WithHint(b.err, hint)
	return b
}

func (b *ErrorBuilder) WithHintf(format string, args ...any) *ErrorBuilder {
	b.err = errors.WithHintf(b.err, format, args...)
	return b
}

// WithReportableDetails attaches key/value pairs that are returned to the
// client under "details" and read back by ReportableDetails.
// Values that cannot be marshalled are dropped.
func (b *ErrorBuilder) WithReportableDetails(details map[string]any) *ErrorBuilder {
	if len(details) == 0 {
		return b
	}
	payload, err := json.Marshal(details)
	if err != nil {
		return b
	}
	b.err = errors.WithSafeDetails(b.err, detailsPrefix+"%s", errors.Safe(string(payload)))
	return b
}

// Mark tags the error with a sentinel so Is* predicates and
// HTTPStatusFromErr recognise it
func (b *ErrorBuilder) Mark(reference error) error {
	return errors.Mark(b.err, reference)
}

func (b *ErrorBuilder) Error() error {
	return b.err
}
