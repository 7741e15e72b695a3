package mainconfig

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/wolfman30/hospital-voice-booking/internal/app/bootstrap"
	appconfig "github.com/wolfman30/hospital-voice-booking/internal/config"
	"github.com/wolfman30/hospital-voice-booking/pkg/logging"
)

// LoadAWSConfig builds the AWS SDK config shared by the session table, the
// audit bucket and the booking-events queue. AWS_ENDPOINT_OVERRIDE points all
// three at LocalStack.
func LoadAWSConfig(ctx context.Context, cfg *appconfig.Config) (aws.Config, error) {
	loaders := []func(*config.LoadOptions) error{config.WithRegion(cfg.AWSRegion)}
	if strings.TrimSpace(cfg.AWSAccessKeyID) != "" && strings.TrimSpace(cfg.AWSSecretAccessKey) != "" {
		loaders = append(loaders, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return aws.Config{}, err
	}

	if endpoint := cfg.AWSEndpointOverride; endpoint != "" {
		awsCfg.EndpointResolverWithOptions = aws.EndpointResolverWithOptionsFunc(
			func(service, region string, _ ...interface{}) (aws.Endpoint, error) {
				switch service {
				case sqs.ServiceID, dynamodb.ServiceID, s3.ServiceID:
					return aws.Endpoint{
						URL:           endpoint,
						PartitionID:   "aws",
						SigningRegion: cfg.AWSRegion,
					}, nil
				default:
					return aws.Endpoint{}, &aws.EndpointNotFoundError{}
				}
			},
		)
	}

	return awsCfg, nil
}

// NeedsAWS reports whether any configured component talks to AWS.
func NeedsAWS(cfg *appconfig.Config) bool {
	return cfg.SessionBackend == appconfig.SessionBackendDynamoDB ||
		strings.TrimSpace(cfg.AuditS3Bucket) != "" ||
		strings.TrimSpace(cfg.BookingEventsQueueURL) != ""
}

// ConnectClients opens only the infrastructure the configuration asks for.
// The returned cleanup closes whatever was opened, newest first.
func ConnectClients(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (bootstrap.Clients, func(), error) {
	var clients bootstrap.Clients
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if rdb := bootstrap.BuildRedisClient(ctx, cfg, logger, true); rdb != nil {
		clients.Redis = rdb
		closers = append(closers, func() { _ = rdb.Close() })
	}

	pool, err := bootstrap.BuildPostgresPool(ctx, cfg, logger)
	if err != nil {
		cleanup()
		return bootstrap.Clients{}, func() {}, err
	}
	if pool != nil {
		clients.Postgres = pool
		closers = append(closers, pool.Close)
	}

	if NeedsAWS(cfg) {
		awsCfg, err := LoadAWSConfig(ctx, cfg)
		if err != nil {
			cleanup()
			return bootstrap.Clients{}, func() {}, fmt.Errorf("load aws config: %w", err)
		}
		clients.DynamoDB = dynamodb.NewFromConfig(awsCfg)
		clients.S3 = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.UsePathStyle = cfg.AWSEndpointOverride != ""
		})
		clients.SQS = sqs.NewFromConfig(awsCfg)
	}
	return clients, cleanup, nil
}
