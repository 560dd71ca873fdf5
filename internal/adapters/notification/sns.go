package notification

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/yieldvault/yield_service/internal/domain/entities"
	"github.com/yieldvault/yield_service/pkg/logger"
	"github.com/yieldvault/yield_service/pkg/metrics"
)

// snsPublisher is the part of the SNS client we use
type snsPublisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSConfig holds the ops alert topic settings
type SNSConfig struct {
	Region   string
	TopicARN string
}

// SNSNotifier publishes operator alerts to an SNS topic so paging and chat
// integrations can subscribe
type SNSNotifier struct {
	client   snsPublisher
	topicARN string
	logger   *logger.Logger
}

var _ OpsNotifier = (*SNSNotifier)(nil)

// NewSNSNotifier loads the default AWS credential chain
func NewSNSNotifier(ctx context.Context, config SNSConfig, log *logger.Logger) (*SNSNotifier, error) {
	if config.TopicARN == "" {
		return nil, fmt.Errorf("sns topic arn is required")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(config.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &SNSNotifier{
		client:   sns.NewFromConfig(awsCfg),
		topicARN: config.TopicARN,
		logger:   log,
	}, nil
}

func (n *SNSNotifier) NotifyWithdrawalRequested(ctx context.Context, req *entities.WithdrawalRequest) error {
	return n.publish(ctx, "withdrawal_requested", withdrawalMessage(req))
}

func (n *SNSNotifier) NotifyAccrualFailures(ctx context.Context, report *entities.AccrualRunReport) error {
	return n.publish(ctx, "accrual_failures", accrualFailureMessage(report))
}

func (n *SNSNotifier) publish(ctx context.Context, event string, msg message) error {
	subject := msg.subject
	// SNS subjects are limited to 100 characters
	if len(subject) > 100 {
		subject = subject[:100]
	}

	_, err := n.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(n.topicARN),
		Subject:  aws.String(subject),
		Message:  aws.String(msg.text),
		MessageAttributes: map[string]snstypes.MessageAttributeValue{
			"event": {DataType: aws.String("String"), StringValue: aws.String(event)},
		},
	})
	metrics.RecordExternalCall("sns", err)
	if err != nil {
		n.logger.Error("Failed to publish ops alert", "event", event, "error", err)
		return fmt.Errorf("failed to publish alert: %w", err)
	}
	return nil
}

// Fanout delivers every alert to all notifiers and joins their errors
type Fanout []OpsNotifier

func (f Fanout) NotifyWithdrawalRequested(ctx context.Context, req *entities.WithdrawalRequest) error {
	var errs []error
	for _, n := range f {
		errs = append(errs, n.NotifyWithdrawalRequested(ctx, req))
	}
	return errors.Join(errs...)
}

func (f Fanout) NotifyAccrualFailures(ctx context.Context, report *entities.AccrualRunReport) error {
	var errs []error
	for _, n := range f {
		errs = append(errs, n.NotifyAccrualFailures(ctx, report))
	}
	return errors.Join(errs...)
}
