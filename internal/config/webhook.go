package config

import (
	"time"

	"github.com/voxagent/billing/internal/types"
)

// Webhook represents the configuration for the webhook system
type Webhook struct {
	Enabled         bool                              `mapstructure:"enabled"`
	Topic           string                            `mapstructure:"topic" default:"webhooks"`
	PubSub          types.PubSubType                  `mapstructure:"pubsub" default:"memory"`
	MaxRetries      int                               `mapstructure:"max_retries"`
	InitialInterval time.Duration                     `mapstructure:"initial_interval"`
	MaxInterval     time.Duration                     `mapstructure:"max_interval"`
	Multiplier      float64                           `mapstructure:"multiplier"`
	MaxElapsedTime  time.Duration                     `mapstructure:"max_elapsed_time"`
	Timeout         time.Duration                     `mapstructure:"timeout"`
	Workspaces      map[string]WorkspaceWebhookConfig `mapstructure:"workspaces"`
	Svix            Svix                              `mapstructure:"svix"`
}

// WorkspaceWebhookConfig represents webhook configuration for a specific workspace
type WorkspaceWebhookConfig struct {
	Endpoint       string            `mapstructure:"endpoint"`
	Headers        map[string]string `mapstructure:"headers"`
	Enabled        bool              `mapstructure:"enabled"`
	ExcludedEvents []string          `mapstructure:"excluded_events"`
}

// Svix configures managed delivery through Svix instead of direct posts
type Svix struct {
	Enabled   bool   `mapstructure:"enabled"`
	AuthToken string `mapstructure:"auth_token"`
	BaseURL   string `mapstructure:"base_url"`
}
