package notifier

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"go.uber.org/zap"

	"github.com/azariacindy/MyStudyMate/internal/errs"
	"github.com/azariacindy/MyStudyMate/internal/model"
)

// SNSPublisher is the part of *sns.Client the sender needs.
type SNSPublisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSSender pushes to SNS mobile platform endpoints. The user's device token
// holds the endpoint ARN.
type SNSSender struct {
	client SNSPublisher
	logger *zap.Logger
}

type SNSConfig struct {
	Region string
}

func NewSNSSender(ctx context.Context, cfg SNSConfig, logger *zap.Logger) (*SNSSender, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, errs.Wrap(err, "failed to load default AWS config for SNS")
	}
	return NewSNSSenderWithClient(sns.NewFromConfig(awsCfg), logger), nil
}

func NewSNSSenderWithClient(client SNSPublisher, logger *zap.Logger) *SNSSender {
	return &SNSSender{client: client, logger: logger}
}

// snsEnvelope builds the per-platform JSON message SNS expects when
// MessageStructure is "json".
func snsEnvelope(msg Message) (string, error) {
	gcm, err := json.Marshal(map[string]interface{}{
		"notification": map[string]string{"title": msg.Title, "body": msg.Body},
		"data":         msg.Data,
	})
	if err != nil {
		return "", err
	}
	apns, err := json.Marshal(map[string]interface{}{
		"aps":  map[string]interface{}{"alert": map[string]string{"title": msg.Title, "body": msg.Body}},
		"data": msg.Data,
	})
	if err != nil {
		return "", err
	}
	out, err := json.Marshal(map[string]string{
		"default":      msg.Body,
		"GCM":          string(gcm),
		"APNS":         string(apns),
		"APNS_SANDBOX": string(apns),
	})
	return string(out), err
}

func (s *SNSSender) Send(ctx context.Context, msg Message) error {
	if msg.Token == "" {
		return errs.ErrNoDeviceToken
	}
	envelope, err := snsEnvelope(msg)
	if err != nil {
		return errs.Wrap(err, "marshal sns message")
	}

	result, err := s.client.Publish(ctx, &sns.PublishInput{
		TargetArn:        aws.String(msg.Token),
		Message:          aws.String(envelope),
		MessageStructure: aws.String("json"),
		Subject:          aws.String(msg.Title),
	})
	if err != nil {
		var disabled *types.EndpointDisabledException
		var notFound *types.NotFoundException
		if errs.As(err, &disabled) || errs.As(err, &notFound) {
			return errs.Wrap(errs.ErrInvalidDeviceToken, err.Error())
		}
		return errs.Wrap(err, "sns publish failed")
	}

	s.logger.Info("push sent via SNS",
		zap.String("type", msg.Data["type"]),
		zap.String("message_id", aws.ToString(result.MessageId)),
	)
	return nil
}

func (s *SNSSender) SupportsChannel(channel string) bool {
	return channel == model.ChannelSNS
}
