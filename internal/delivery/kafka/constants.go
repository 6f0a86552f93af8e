package kafka

import "time"

const (
	TopicCreateRequest   = "coupon.create.req"
	TopicValidateRequest = "coupon.validate.req"
	TopicApplyRequest    = "coupon.apply.req"
	TopicGetRequest      = "coupon.get.req"
	TopicCreateRetry     = "coupon.create.retry"
	TopicValidateRetry   = "coupon.validate.retry"
	TopicApplyRetry      = "coupon.apply.retry"
	TopicGetRetry        = "coupon.get.retry"
	TopicReplyPrefix     = "coupon.reply."
	TopicRequestSuffix   = ".req"
	TopicRetrySuffix     = ".retry"
	TopicDLQSuffix       = ".dlq"

	RequestTimeout = 3 * time.Second

	RetryHeaderNextAt = "x-next-at"
	ErrorHeaderKey    = "x-error"
)
