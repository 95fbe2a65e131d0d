package cache

import (
	"context"

	"github.com/getsentry/sentry-go"
)

// StartCacheSpan opens a span for a cache lookup when the request carries a sentry hub
func StartCacheSpan(ctx context.Context, cache, operation string, params map[string]interface{}) *sentry.Span {
	if sentry.GetHubFromContext(ctx) == nil {
		return nil
	}

	name := "cache." + cache + "." + operation
	span := sentry.StartSpan(ctx, name)
	span.Description = name
	span.Op = "cache"
	span.SetData("cache", cache)
	for k, v := range params {
		span.SetData(k, v)
	}
	return span
}

func FinishSpan(span *sentry.Span) {
	if span != nil {
		span.Finish()
	}
}

func SetSpanSuccess(span *sentry.Span) {
	if span != nil {
		span.Status = sentry.SpanStatusOK
	}
}
