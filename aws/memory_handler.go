package aws

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"tabkeep/config"
	"tabkeep/pkg/logger"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
)

// GetAnchorUUID resolves a client-supplied anchor ID to the anchor's
// primary key, verifying ownership.
func GetAnchorUUID(ctx context.Context, client *dynamodb.Client, anchorID, userID string) (string, error) {
	result, err := client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(MemoryAnchorsTableName),
		IndexName:              aws.String(AnchorsAnchorIDGSI),
		KeyConditionExpression: aws.String("anchor_id = :anchor_id"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":anchor_id": &types.AttributeValueMemberS{Value: anchorID},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to query anchor: %w", err)
	}

	for _, item := range result.Items {
		var anchor MemoryAnchor
		if err := attributevalue.UnmarshalMap(item, &anchor); err != nil {
			continue
		}
		if anchor.UserID == userID {
			return anchor.ID, nil
		}
	}

	return "", fmt.Errorf("anchor not found")
}

// GetOrCreateDefaultAnchor returns the user's default anchor, creating one
// on first use.
func GetOrCreateDefaultAnchor(ctx context.Context, client *dynamodb.Client, userID string) (*MemoryAnchor, error) {
	result, err := client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(MemoryAnchorsTableName),
		IndexName:              aws.String(AnchorsUserIDGSI),
		KeyConditionExpression: aws.String("user_id = :user_id"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":user_id": &types.AttributeValueMemberS{Value: userID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query anchors: %w", err)
	}

	for _, item := range result.Items {
		var anchor MemoryAnchor
		if err := attributevalue.UnmarshalMap(item, &anchor); err != nil {
			continue
		}
		if anchor.IsDefault {
			return &anchor, nil
		}
	}

	anchor := MemoryAnchor{
		ID:        uuid.New().String(),
		AnchorID:  generateAnchorID(userID, "DEF"),
		UserID:    userID,
		Name:      "Default",
		IsDefault: true,
		CreatedAt: time.Now(),
	}

	av, err := attributevalue.MarshalMap(anchor)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal anchor: %w", err)
	}

	_, err = client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(MemoryAnchorsTableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create default anchor: %w", err)
	}

	return &anchor, nil
}

// generateAnchorID builds the short human-readable anchor handle.
func generateAnchorID(userID, purpose string) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))[:8]
	return fmt.Sprintf("%s-%s", purpose, suffix)
}

// GetUserMemories fetches the highest-importance memories for an anchor,
// capped by the plan's memory limit.
func GetUserMemories(ctx context.Context, client *dynamodb.Client, anchorUUID, plan string) ([]Memory, error) {
	planConfig := config.GetPlanConfig(plan)
	memoryLimit := planConfig.MemoryLimit
	if memoryLimit <= 0 {
		memoryLimit = 15
	}

	result, err := client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(UserMemoryTableName),
		IndexName:              aws.String(MemoryAnchorGSI),
		KeyConditionExpression: aws.String("anchor_id = :anchor_id"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":anchor_id": &types.AttributeValueMemberS{Value: anchorUUID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query memories: %w", err)
	}

	memories := make([]Memory, 0, len(result.Items))
	for _, item := range result.Items {
		var memory Memory
		if err := attributevalue.UnmarshalMap(item, &memory); err != nil {
			continue
		}
		memories = append(memories, memory)
	}

	sort.SliceStable(memories, func(i, j int) bool {
		return memories[i].Importance > memories[j].Importance
	})

	if len(memories) > memoryLimit {
		memories = memories[:memoryLimit]
	}

	return memories, nil
}

// MemoryContext assembles the memory context block for the system prompt.
// Every failure along the way is non-fatal and yields an empty context.
func MemoryContext(ctx context.Context, userID, anchorID, plan string) string {
	log := logger.GetLogger("memory")

	client := GetDynamoDBClient(ctx)
	if client == nil || userID == "" {
		return ""
	}

	resolvedUUID := ""
	resolvedAnchorID := anchorID

	if anchorID != "" {
		if id, err := GetAnchorUUID(ctx, client, anchorID, userID); err == nil {
			resolvedUUID = id
		}
	}

	if resolvedUUID == "" {
		anchor, err := GetOrCreateDefaultAnchor(ctx, client, userID)
		if err != nil {
			log.WarnWithFields("No memory anchor available", map[string]interface{}{
				"user_id": userID,
				"reason":  err.Error(),
			})
			return ""
		}
		resolvedUUID = anchor.ID
		resolvedAnchorID = anchor.AnchorID
	}

	memories, err := GetUserMemories(ctx, client, resolvedUUID, plan)
	if err != nil {
		log.Warn("Failed to fetch memories: " + err.Error())
		memories = nil
	}

	var profile *Profile
	if p, err := GetProfile(ctx, client, userID); err == nil {
		profile = p
	}

	return BuildMemoryContext(memories, resolvedAnchorID, profile)
}
