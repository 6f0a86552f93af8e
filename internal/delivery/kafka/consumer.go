package kafka

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"

	"github.com/undangke/coupon-service/internal/config"
	"github.com/undangke/coupon-service/internal/domain"
	"github.com/undangke/coupon-service/internal/usecase"
)

type Consumer struct {
	client *kgo.Client
	cfg    *config.Config
	engine *usecase.CouponEngine
	logger *zap.Logger
	ready  chan struct{}
}

func NewConsumer(cfg *config.Config, client *kgo.Client, engine *usecase.CouponEngine, logger *zap.Logger) *Consumer {
	return &Consumer{
		client: client,
		cfg:    cfg,
		engine: engine,
		logger: logger,
		ready:  make(chan struct{}),
	}
}

func (c *Consumer) Start(ctx context.Context) {
	close(c.ready)
	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return
		}
		if errs := fetches.Errors(); len(errs) > 0 {
			c.logger.Error("consumer poll errors", zap.Any("errors", errs))
		}

		iter := fetches.RecordIter()
		for !iter.Done() {
			record := iter.Next()
			c.processRecord(ctx, record)
		}

		if err := c.client.CommitRecords(ctx, fetches.Records()...); err != nil {
			c.logger.Error("failed to commit records", zap.Error(err))
		}
	}
}

// StartRetry drains the retry topics, waiting out each record's next-at
// header before requeueing it onto its main request topic.
func (c *Consumer) StartRetry(ctx context.Context) {
	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return
		}
		iter := fetches.RecordIter()
		for !iter.Done() {
			record := iter.Next()

			if nextAt, ok := retryNextAt(record); ok && time.Now().Before(nextAt) {
				time.Sleep(time.Until(nextAt))
			}

			mainTopic := strings.TrimSuffix(record.Topic, TopicRetrySuffix) + TopicRequestSuffix
			newRecord := &kgo.Record{
				Topic:   mainTopic,
				Key:     record.Key,
				Value:   record.Value,
				Headers: record.Headers,
			}
			if err := c.client.ProduceSync(ctx, newRecord).FirstErr(); err != nil {
				c.logger.Error("failed to requeue retry record", zap.Error(err))
			}
		}
		if err := c.client.CommitRecords(ctx, fetches.Records()...); err != nil {
			c.logger.Error("failed to commit retry records", zap.Error(err))
		}
	}
}

func (c *Consumer) Ready() <-chan struct{} {
	return c.ready
}

func (c *Consumer) processRecord(ctx context.Context, record *kgo.Record) {
	switch record.Topic {
	case TopicCreateRequest:
		c.handleCreate(ctx, record)
	case TopicValidateRequest:
		c.handleValidate(ctx, record)
	case TopicApplyRequest:
		c.handleApply(ctx, record)
	case TopicGetRequest:
		c.handleGet(ctx, record)
	}
}

func (c *Consumer) handleCreate(ctx context.Context, record *kgo.Record) {
	req, ok := c.decode(ctx, record)
	if !ok {
		return
	}
	if req.Coupon == nil {
		c.sendInvalid(ctx, record, req, "missing coupon definition")
		return
	}

	created, err := c.engine.CreateCoupon(ctx, req.Coupon)
	var resp *ResponsePayload
	if err != nil {
		resp = errorResponseFor(req.CorrelationID, err)
	} else {
		resp = successResponse(req.CorrelationID)
		resp.Coupon = created
	}
	c.sendResponse(ctx, req.ReplyTo, resp)
}

func (c *Consumer) handleValidate(ctx context.Context, record *kgo.Record) {
	req, ok := c.decode(ctx, record)
	if !ok {
		return
	}
	if req.Context == nil {
		c.sendInvalid(ctx, record, req, "missing redeem context")
		return
	}

	quote, err := c.engine.ValidateCoupon(ctx, req.Code, *req.Context)
	var resp *ResponsePayload
	if err != nil {
		resp = errorResponseFor(req.CorrelationID, err)
	} else {
		resp = successResponse(req.CorrelationID)
		resp.Quote = quote
	}
	c.sendResponse(ctx, req.ReplyTo, resp)
}

func (c *Consumer) handleApply(ctx context.Context, record *kgo.Record) {
	req, ok := c.decode(ctx, record)
	if !ok {
		return
	}
	if req.Context == nil {
		c.sendInvalid(ctx, record, req, "missing redeem context")
		return
	}

	usage, err := c.engine.ApplyCoupon(ctx, req.Code, *req.Context)
	var resp *ResponsePayload
	if err != nil {
		resp = errorResponseFor(req.CorrelationID, err)
	} else {
		resp = successResponse(req.CorrelationID)
		resp.Usage = usage
	}
	c.sendResponse(ctx, req.ReplyTo, resp)
}

func (c *Consumer) handleGet(ctx context.Context, record *kgo.Record) {
	req, ok := c.decode(ctx, record)
	if !ok {
		return
	}

	details, err := c.engine.GetCouponDetails(ctx, req.Code)
	var resp *ResponsePayload
	if err != nil {
		resp = errorResponseFor(req.CorrelationID, err)
	} else {
		resp = successResponse(req.CorrelationID)
		resp.Details = details
	}
	c.sendResponse(ctx, req.ReplyTo, resp)
}

func (c *Consumer) decode(ctx context.Context, record *kgo.Record) (RequestPayload, bool) {
	var req RequestPayload
	if err := json.Unmarshal(record.Value, &req); err != nil {
		c.sendToDLQ(ctx, record, "invalid request payload")
		return req, false
	}
	return req, true
}

func (c *Consumer) sendInvalid(ctx context.Context, record *kgo.Record, req RequestPayload, message string) {
	if req.ReplyTo != "" {
		resp := errorResponseFor(req.CorrelationID, domain.ErrInvalidRequest)
		resp.ErrorMessage = message
		c.sendResponse(ctx, req.ReplyTo, resp)
	}
	c.sendToDLQ(ctx, record, message)
}

func (c *Consumer) sendResponse(ctx context.Context, topic string, resp *ResponsePayload) {
	payload, _ := json.Marshal(resp)
	record := &kgo.Record{
		Topic: topic,
		Value: payload,
	}
	if err := c.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		c.logger.Error("failed to send response", zap.String("topic", topic), zap.Error(err))
	}
}

func (c *Consumer) sendToDLQ(ctx context.Context, record *kgo.Record, message string) {
	dlqRecord := &kgo.Record{
		Topic: record.Topic + TopicDLQSuffix,
		Value: record.Value,
		Headers: []kgo.RecordHeader{
			{Key: ErrorHeaderKey, Value: []byte(message)},
		},
	}
	if err := c.client.ProduceSync(ctx, dlqRecord).FirstErr(); err != nil {
		c.logger.Error("failed to send record to DLQ", zap.Error(err))
	}
}

func retryNextAt(record *kgo.Record) (time.Time, bool) {
	for _, header := range record.Headers {
		if header.Key != RetryHeaderNextAt {
			continue
		}
		nextAt, err := time.Parse(time.RFC3339, string(header.Value))
		if err != nil {
			return time.Time{}, false
		}
		return nextAt, true
	}

	return time.Time{}, false
}
