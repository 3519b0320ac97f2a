package aws

import (
	"context"
	"os"
	"sync"

	"tabkeep/pkg/logger"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

var (
	dynamoClient *dynamodb.Client
	dynamoOnce   sync.Once
)

// GetDynamoDBClient returns the shared DynamoDB client. DYNAMODB_ENDPOINT
// switches to a local endpoint with static dev credentials.
func GetDynamoDBClient(ctx context.Context) *dynamodb.Client {
	dynamoOnce.Do(func() {
		region := os.Getenv("AWS_REGION")
		if region == "" {
			region = "us-east-1"
		}

		endpoint := os.Getenv("DYNAMODB_ENDPOINT")

		var cfg aws.Config
		var err error
		if endpoint != "" {
			cfg, err = awsconfig.LoadDefaultConfig(ctx,
				awsconfig.WithRegion(region),
				awsconfig.WithCredentialsProvider(
					credentials.NewStaticCredentialsProvider("local", "local", ""),
				),
			)
		} else {
			cfg, err = awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
		}
		if err != nil {
			logger.GetLogger("dynamodb").Error("Failed to load AWS config", err)
			return
		}

		dynamoClient = dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
			if endpoint != "" {
				o.BaseEndpoint = aws.String(endpoint)
			}
		})
	})

	return dynamoClient
}
