package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/salymed/salymed-backend/pkg/config"
	"github.com/salymed/salymed-backend/pkg/logger"
)

// Billing events are small and bursty; flush quickly rather than wait for
// the library's default batch thresholds.
const (
	billingDelayThreshold = 50 * time.Millisecond
	billingCountThreshold = 100
)

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errNoBillingTopic    = errors.New("pubsub billing topic is required")
	errNotInitialized    = errors.New("pubsub client not initialized")
)

// Client publishes billing domain events to Pub/Sub.
type Client struct {
	client    *pubsub.Client
	projectID string
	cfg       config.PubSubConfig

	once    sync.Once
	billing *pubsub.Publisher
}

// NewClient creates a Pub/Sub client and verifies the billing topic exists.
// PUBSUB_EMULATOR_HOST is honored by the underlying library.
func NewClient(ctx context.Context, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.ProjectID) == "" {
		return nil, errProjectIDRequired
	}

	psClient, err := pubsub.NewClient(ctx, cfg.ProjectID, clientOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}

	c := &Client{client: psClient, projectID: cfg.ProjectID, cfg: cfg}
	if err := c.checkTopic(ctx, cfg.BillingTopic); err != nil {
		_ = psClient.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"project": cfg.ProjectID,
			"topic":   cfg.BillingTopic,
		}), "pubsub client initialized")
	}
	return c, nil
}

// clientOptions prefers inline credentials over a key file. With neither set
// the client falls back to application default credentials.
func clientOptions(cfg config.PubSubConfig) []option.ClientOption {
	switch {
	case strings.TrimSpace(cfg.CredentialsJSON) != "":
		return []option.ClientOption{option.WithCredentialsJSON([]byte(cfg.CredentialsJSON))}
	case strings.TrimSpace(cfg.ApplicationCredentials) != "":
		return []option.ClientOption{option.WithCredentialsFile(cfg.ApplicationCredentials)}
	}
	return nil
}

func (c *Client) checkTopic(ctx context.Context, name string) error {
	fullName := TopicName(c.projectID, name)
	if fullName == "" {
		return errNoBillingTopic
	}
	_, err := c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: fullName})
	switch {
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("topic %q does not exist", fullName)
	case err != nil:
		return fmt.Errorf("get topic %q: %w", fullName, err)
	}
	return nil
}

// BillingPublisher returns the shared billing publisher. Message ordering is
// enabled so events that share an ordering key arrive in publish order.
func (c *Client) BillingPublisher() *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	c.once.Do(func() {
		fullName := TopicName(c.projectID, c.cfg.BillingTopic)
		if fullName == "" {
			return
		}
		p := c.client.Publisher(fullName)
		p.EnableMessageOrdering = true
		p.PublishSettings.DelayThreshold = billingDelayThreshold
		p.PublishSettings.CountThreshold = billingCountThreshold
		c.billing = p
	})
	return c.billing
}

// BillingTopic is the configured topic id.
func (c *Client) BillingTopic() string {
	if c == nil {
		return ""
	}
	return c.cfg.BillingTopic
}

// Ping verifies Pub/Sub connectivity by looking up the billing topic.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errNotInitialized
	}
	return c.checkTopic(ctx, c.cfg.BillingTopic)
}

// Close flushes the billing publisher and releases the client.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	if c.billing != nil {
		c.billing.Stop()
	}
	return c.client.Close()
}

// TopicName expands a topic id into its resource name. Full resource names
// pass through unchanged; an empty name or project yields "".
func TopicName(projectID, name string) string {
	n := strings.TrimSpace(name)
	if n == "" {
		return ""
	}
	if strings.HasPrefix(n, "projects/") && strings.Contains(n, "/topics/") {
		return n
	}
	p := strings.TrimSpace(projectID)
	if p == "" {
		return ""
	}
	return "projects/" + p + "/topics/" + n
}
