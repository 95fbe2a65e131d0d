package svix

import (
	"context"
	"net/url"

	jsoniter "github.com/json-iterator/go"
	svix "github.com/svix/svix-webhooks/go"
	"github.com/svix/svix-webhooks/go/models"
	"github.com/voxagent/billing/internal/config"
	ierr "github.com/voxagent/billing/internal/errors"
)

// Client delivers webhook events through Svix, one application per workspace
type Client struct {
	client  *svix.Svix
	enabled bool
}

func NewClient(config *config.Configuration) (*Client, error) {
	if !config.Webhook.Svix.Enabled {
		return &Client{enabled: false}, nil
	}

	opts := &svix.SvixOptions{}
	// empty base url means the hosted svix region encoded in the token
	if baseURL := config.Webhook.Svix.BaseURL; baseURL != "" {
		serverURL, err := url.Parse(baseURL)
		if err != nil {
			return nil, ierr.WithError(err).
				WithHintf("Invalid svix base url %q", baseURL).
				Mark(ierr.ErrConfiguration)
		}
		opts.ServerUrl = serverURL
	}

	svixClient, err := svix.New(config.Webhook.Svix.AuthToken, opts)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to create svix client").
			Mark(ierr.ErrConfiguration)
	}

	return &Client{client: svixClient, enabled: true}, nil
}

func (c *Client) Enabled() bool {
	return c.enabled && c.client != nil
}

// GetOrCreateApplication returns the Svix application uid of a workspace
func (c *Client) GetOrCreateApplication(ctx context.Context, workspaceID string) (string, error) {
	if !c.Enabled() {
		return "", nil
	}

	appID := "ws_" + workspaceID
	if _, err := c.client.Application.Get(ctx, appID); err == nil {
		return appID, nil
	}

	app, err := c.client.Application.Create(ctx, models.ApplicationIn{
		Name: workspaceID,
		Uid:  &appID,
	}, &svix.ApplicationCreateOptions{})
	if err != nil {
		return "", ierr.WithError(err).
			WithMessagef("create svix application for workspace %s", workspaceID).
			WithHint("Webhook provider is unavailable").
			Mark(ierr.ErrExternalDependency)
	}

	return app.Id, nil
}

// SendMessage posts one event payload to the workspace application
func (c *Client) SendMessage(ctx context.Context, applicationID, eventType string, payload []byte) error {
	if !c.Enabled() {
		return nil
	}

	var payloadMap map[string]interface{}
	if err := jsoniter.Unmarshal(payload, &payloadMap); err != nil {
		return ierr.WithError(err).
			WithHint("Webhook payload is not a JSON object").
			Mark(ierr.ErrValidation)
	}

	_, err := c.client.Message.Create(ctx, applicationID, models.MessageIn{
		EventType: eventType,
		Payload:   payloadMap,
	}, &svix.MessageCreateOptions{})
	if err != nil {
		return ierr.WithError(err).
			WithMessagef("send %s to svix application %s", eventType, applicationID).
			WithHint("Webhook provider is unavailable").
			Mark(ierr.ErrExternalDependency)
	}

	return nil
}
