package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"

	"github.com/undangke/coupon-service/internal/config"
	"github.com/undangke/coupon-service/internal/domain"
	"github.com/undangke/coupon-service/internal/usecase"
)

// Gateway implements usecase.CouponGateway over Kafka request/reply topics.
// Each request carries a correlation ID and a per-instance reply topic;
// HandleResponse routes replies back to the waiting caller.
type Gateway struct {
	client      *kgo.Client
	cfg         *config.Config
	logger      *zap.Logger
	pendingResp sync.Map
}

func NewGateway(cfg *config.Config, client *kgo.Client, logger *zap.Logger) *Gateway {
	return &Gateway{
		client: client,
		cfg:    cfg,
		logger: logger,
	}
}

func (g *Gateway) CreateCoupon(ctx context.Context, c *domain.Coupon) (*domain.Coupon, error) {
	req := g.newRequest()
	req.Coupon = c

	resp, err := g.requestReply(ctx, TopicCreateRequest, []byte(domain.NormalizeCode(c.Code)), req)
	if err != nil {
		return nil, err
	}
	if resp.Status == StatusError {
		return nil, errorFromResponse(resp)
	}
	return resp.Coupon, nil
}

func (g *Gateway) ValidateCoupon(ctx context.Context, code string, rc domain.RedeemContext) (*domain.Quote, error) {
	req := g.newRequest()
	req.Code = code
	req.Context = &rc

	key := fmt.Sprintf("%s:%d", domain.NormalizeCode(code), rc.UserID)
	resp, err := g.requestReply(ctx, TopicValidateRequest, []byte(key), req)
	if err != nil {
		return nil, err
	}
	if resp.Status == StatusError {
		return nil, errorFromResponse(resp)
	}
	return resp.Quote, nil
}

func (g *Gateway) ApplyCoupon(ctx context.Context, code string, rc domain.RedeemContext) (*domain.CouponUsage, error) {
	req := g.newRequest()
	req.Code = code
	req.Context = &rc

	key := fmt.Sprintf("%s:%d", domain.NormalizeCode(code), rc.UserID)
	resp, err := g.requestReply(ctx, TopicApplyRequest, []byte(key), req)
	if err != nil {
		return nil, err
	}
	if resp.Status == StatusError {
		return nil, errorFromResponse(resp)
	}
	return resp.Usage, nil
}

func (g *Gateway) GetCouponDetails(ctx context.Context, code string) (*domain.CouponDetails, error) {
	req := g.newRequest()
	req.Code = code

	resp, err := g.requestReply(ctx, TopicGetRequest, []byte(domain.NormalizeCode(code)), req)
	if err != nil {
		return nil, err
	}
	if resp.Status == StatusError {
		return nil, errorFromResponse(resp)
	}
	return resp.Details, nil
}

func (g *Gateway) newRequest() RequestPayload {
	return RequestPayload{
		SchemaVersion: 1,
		CorrelationID: uuid.New().String(),
		ReplyTo:       fmt.Sprintf("%s%s", TopicReplyPrefix, g.cfg.KafkaInstanceID),
	}
}

func (g *Gateway) requestReply(ctx context.Context, topic string, key []byte, req RequestPayload) (*ResponsePayload, error) {
	respChan := make(chan *ResponsePayload, 1)
	g.pendingResp.Store(req.CorrelationID, respChan)
	defer g.pendingResp.Delete(req.CorrelationID)

	payload, _ := json.Marshal(req)
	record := &kgo.Record{
		Topic: topic,
		Key:   key,
		Value: payload,
	}

	if err := g.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return nil, err
	}

	select {
	case resp := <-respChan:
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(RequestTimeout):
		return nil, errors.New("timeout waiting for response")
	}
}

func (g *Gateway) HandleResponse(payload []byte) {
	var resp ResponsePayload
	if err := json.Unmarshal(payload, &resp); err != nil {
		g.logger.Error("failed to decode response payload", zap.Error(err))
		return
	}

	if ch, ok := g.pendingResp.Load(resp.CorrelationID); ok {
		ch.(chan *ResponsePayload) <- &resp
		return
	}

	g.logger.Warn("no pending response for correlation id",
		zap.String("correlation_id", resp.CorrelationID))
}

var _ usecase.CouponGateway = (*Gateway)(nil)
