package types

import (
	"encoding/json"
	"time"
)

// WebhookEvent represents a webhook event to be delivered
type WebhookEvent struct {
	ID          string          `json:"id"`
	EventName   string          `json:"event_name"`
	WorkspaceID string          `json:"workspace_id"`
	UserID      string          `json:"user_id"`
	Timestamp   time.Time       `json:"timestamp"`
	Payload     json.RawMessage `json:"payload"`
}

// credit event names
const (
	WebhookEventCreditBalanceLow       = "credit.balance.low"
	WebhookEventCreditBalanceCritical  = "credit.balance.critical"
	WebhookEventCreditAccountSuspended = "credit.account.suspended"
	WebhookEventCreditAccountResumed   = "credit.account.resumed"
	WebhookEventCreditRecharged        = "credit.recharged"
	WebhookEventAutoRechargeFailed     = "credit.auto_recharge.failed"
)

// billing event names
const (
	WebhookEventInvoiceGenerated = "billing.invoice.generated"
)
