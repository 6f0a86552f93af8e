package kafka

import (
	"context"
	"fmt"
	"strings"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"

	"github.com/undangke/coupon-service/internal/config"
)

func EnsureTopics(ctx context.Context, client *kgo.Client, cfg *config.Config, logger *zap.Logger) error {
	adm := kadm.NewClient(client)

	topics := []string{
		TopicCreateRequest,
		TopicValidateRequest,
		TopicApplyRequest,
		TopicGetRequest,
		TopicCreateRetry,
		TopicValidateRetry,
		TopicApplyRetry,
		TopicGetRetry,
		TopicCreateRequest + TopicDLQSuffix,
		TopicValidateRequest + TopicDLQSuffix,
		TopicApplyRequest + TopicDLQSuffix,
		TopicGetRequest + TopicDLQSuffix,
		fmt.Sprintf("%s%s", TopicReplyPrefix, cfg.KafkaInstanceID),
	}

	partitions := cfg.TopicPartitions()
	retryPartitions := cfg.RetryPartitions()
	replicationFactor := cfg.ReplicationFactor()

	for _, topic := range topics {
		p := partitions
		if strings.HasSuffix(topic, TopicRetrySuffix) || strings.HasSuffix(topic, TopicDLQSuffix) {
			p = retryPartitions
		}

		resp, err := adm.CreateTopics(ctx, int32(p), replicationFactor, nil, topic)
		if err != nil {
			return fmt.Errorf("failed to create topic %s: %w", topic, err)
		}
		for _, detail := range resp {
			if detail.Err != nil && !strings.Contains(detail.Err.Error(), "already exists") {
				return fmt.Errorf("failed to create topic %s: %w", detail.Topic, detail.Err)
			}
		}
	}

	logger.Info("all topics ensured")
	return nil
}
