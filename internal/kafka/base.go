package kafka

import (
	"crypto/tls"
	"time"

	"github.com/Shopify/sarama"
	"github.com/ThreeDotsLabs/watermill-kafka/v2/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/voxagent/billing/internal/config"
)

// MetadataWorkspaceID is the message metadata key messages are partitioned by.
// Events of one workspace land on one partition and are consumed in order,
// which keeps balance debits in the order usage happened.
const MetadataWorkspaceID = "workspace_id"

// marshaler is shared by producer and consumer so keys round-trip
var marshaler = kafka.NewWithPartitioningMarshaler(func(_ string, msg *message.Message) (string, error) {
	return msg.Metadata.Get(MetadataWorkspaceID), nil
})

// GetSaramaConfig builds the sarama client config shared by the usage
// consumer and the webhook producer
func GetSaramaConfig(cfg *config.Configuration) *sarama.Config {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V2_1_0_0
	saramaConfig.ClientID = cfg.Kafka.ClientID

	// start from the oldest offset so a new consumer group never skips usage
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetOldest
	saramaConfig.Consumer.Offsets.AutoCommit.Enable = true
	saramaConfig.Consumer.Offsets.AutoCommit.Interval = 5 * time.Second
	saramaConfig.Consumer.Offsets.Retry.Max = 3

	if cfg.Kafka.TLS {
		saramaConfig.Net.TLS.Enable = true
		saramaConfig.Net.TLS.Config = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	if !cfg.Kafka.UseSASL {
		return saramaConfig
	}

	saramaConfig.Net.SASL.Enable = true
	saramaConfig.Net.TLS.Enable = true
	saramaConfig.Net.SASL.Mechanism = cfg.Kafka.SASLMechanism
	saramaConfig.Net.SASL.User = cfg.Kafka.SASLUser
	saramaConfig.Net.SASL.Password = cfg.Kafka.SASLPassword

	return saramaConfig
}
