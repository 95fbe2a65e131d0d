package internal

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	jsoniter "github.com/json-iterator/go"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/voxagent/billing/internal/api/dto"
	"github.com/voxagent/billing/internal/config"
	"github.com/voxagent/billing/internal/domain/usage"
	"github.com/voxagent/billing/internal/kafka"
	"github.com/voxagent/billing/internal/logger"
	"github.com/voxagent/billing/internal/types"
	"golang.org/x/time/rate"
)

const defaultEventCount = 100

// SeedUsageEvents publishes synthetic voice agent calls for one service
func SeedUsageEvents() error {
	cfg, err := config.NewConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log, err := logger.NewLogger(cfg)
	if err != nil {
		return err
	}

	workspaceID := os.Getenv("WORKSPACE_ID")
	serviceID := os.Getenv("SERVICE_ID")
	if workspaceID == "" || serviceID == "" {
		return fmt.Errorf("WORKSPACE_ID and SERVICE_ID are required")
	}
	count := defaultEventCount
	if v := os.Getenv("EVENT_COUNT"); v != "" {
		if count, err = strconv.Atoi(v); err != nil {
			return fmt.Errorf("invalid EVENT_COUNT: %w", err)
		}
	}

	producer, err := kafka.NewProducer(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create producer: %w", err)
	}
	defer producer.Close()

	limiter := rate.NewLimiter(rate.Limit(50), 10)
	ctx := context.Background()

	for i := 0; i < count; i++ {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}

		event := voiceCall(workspaceID, serviceID)
		payload, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(event)
		if err != nil {
			return err
		}

		msg := message.NewMessage(watermill.NewUUID(), payload)
		msg.Metadata.Set(kafka.MetadataWorkspaceID, workspaceID)
		if err := producer.Publish(cfg.Kafka.UsageTopic, msg); err != nil {
			return fmt.Errorf("failed to publish event %s: %w", event.EventID, err)
		}

		if (i+1)%50 == 0 {
			log.Infow("published usage events", "count", i+1, "topic", cfg.Kafka.UsageTopic)
		}
	}

	log.Infow("finished seeding usage events", "count", count, "workspace_id", workspaceID)
	return nil
}

// voiceCall is a call of 30 seconds to 10 minutes with proportional speech and tokens
func voiceCall(workspaceID, serviceID string) *dto.RecordUsageRequest {
	seconds := 30 + rand.Int63n(570)
	return &dto.RecordUsageRequest{
		EventID:     types.GenerateUUIDWithPrefix("evt"),
		WorkspaceID: workspaceID,
		ServiceType: types.ServiceTypeAgent,
		ServiceID:   serviceID,
		Usage: usage.Metrics{
			STTSeconds:    lo.ToPtr(decimal.NewFromInt(seconds)),
			TTSCharacters: lo.ToPtr(decimal.NewFromInt(seconds * 12)),
			LLMTokens:     lo.ToPtr(decimal.NewFromInt(seconds * 40)),
		},
		OccurredAt: lo.ToPtr(time.Now().UTC().Add(-time.Duration(rand.Int63n(3600)) * time.Second)),
	}
}
