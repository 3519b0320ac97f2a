package aws

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// ErrProfileNotFound is returned when no profile row exists for a user.
var ErrProfileNotFound = errors.New("profile not found")

// CreateProfile creates a new profile
func CreateProfile(ctx context.Context, client *dynamodb.Client, profile Profile) (*Profile, error) {
	now := time.Now()
	profile.CreatedAt = now
	profile.UpdatedAt = now
	if profile.Plan == "" {
		profile.Plan = "free"
	}

	av, err := attributevalue.MarshalMap(profile)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal profile: %w", err)
	}

	_, err = client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(ProfilesTableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(user_id)"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}

	return &profile, nil
}

// GetProfile retrieves a profile by user ID
func GetProfile(ctx context.Context, client *dynamodb.Client, userID string) (*Profile, error) {
	result, err := client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(ProfilesTableName),
		Key: map[string]types.AttributeValue{
			"user_id": &types.AttributeValueMemberS{Value: userID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	if result.Item == nil {
		return nil, ErrProfileNotFound
	}

	var profile Profile
	err = attributevalue.UnmarshalMap(result.Item, &profile)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal profile: %w", err)
	}

	return &profile, nil
}

// setProfileCooldown stamps the cooldown window on a profile.
func setProfileCooldown(ctx context.Context, client *dynamodb.Client, userID string, until time.Time) error {
	_, err := client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(ProfilesTableName),
		Key: map[string]types.AttributeValue{
			"user_id": &types.AttributeValueMemberS{Value: userID},
		},
		UpdateExpression: aws.String("SET cooldown_until = :until, updated_at = :now"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":until": &types.AttributeValueMemberS{Value: until.Format(time.RFC3339)},
			":now":   &types.AttributeValueMemberS{Value: time.Now().Format(time.RFC3339)},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to set cooldown: %w", err)
	}

	return nil
}

// resetProfileUsage clears the usage counter and cooldown after a cooldown
// window has passed.
func resetProfileUsage(ctx context.Context, client *dynamodb.Client, userID string) error {
	_, err := client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(ProfilesTableName),
		Key: map[string]types.AttributeValue{
			"user_id": &types.AttributeValueMemberS{Value: userID},
		},
		UpdateExpression: aws.String("SET intelligence_used = :zero, updated_at = :now REMOVE cooldown_until"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":zero": &types.AttributeValueMemberN{Value: "0"},
			":now":  &types.AttributeValueMemberS{Value: time.Now().Format(time.RFC3339)},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to reset usage: %w", err)
	}

	return nil
}

// addProfileUsage increments the usage counter atomically.
func addProfileUsage(ctx context.Context, client *dynamodb.Client, userID string, cost int) error {
	_, err := client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(ProfilesTableName),
		Key: map[string]types.AttributeValue{
			"user_id": &types.AttributeValueMemberS{Value: userID},
		},
		UpdateExpression: aws.String("ADD intelligence_used :cost SET updated_at = :now"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":cost": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", cost)},
			":now":  &types.AttributeValueMemberS{Value: time.Now().Format(time.RFC3339)},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to add usage: %w", err)
	}

	return nil
}
