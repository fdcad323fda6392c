package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"reflection-journal/internal/domain"
)

func weekSK(weekStart string) string {
	return skPrefixWeek + weekStart
}

// UpsertWeeklySummary writes or replaces the summary for (owner, week start).
func (c *Client) UpsertWeeklySummary(ctx context.Context, w domain.WeeklySummary) error {
	if w.Owner == "" || w.WeekStart == "" {
		return errors.New("repository: UpsertWeeklySummary: owner and week start are required")
	}
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item: map[string]types.AttributeValue{
			"PK":        strValue(ownerPK(w.Owner)),
			"SK":        strValue(weekSK(w.WeekStart)),
			"owner":     strValue(w.Owner),
			"weekStart": strValue(w.WeekStart),
			"weekEnd":   strValue(w.WeekEnd),
			"summary":   strValue(w.Summary),
		},
	})
	if err != nil {
		return fmt.Errorf("repository: UpsertWeeklySummary: %w", err)
	}
	return nil
}

// ListWeeklySummaries returns the owner's weekly summaries, latest week first.
func (c *Client) ListWeeklySummaries(ctx context.Context, owner string) ([]domain.WeeklySummary, error) {
	items, err := c.queryAll(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     strValue(ownerPK(owner)),
			":prefix": strValue(skPrefixWeek),
		},
		ScanIndexForward: aws.Bool(false),
	})
	if err != nil {
		return nil, fmt.Errorf("repository: ListWeeklySummaries query: %w", err)
	}

	out := make([]domain.WeeklySummary, 0, len(items))
	for _, item := range items {
		var w domain.WeeklySummary
		var err error
		if w.Owner, err = strAttr(item, "owner"); err != nil {
			return nil, fmt.Errorf("repository: ListWeeklySummaries unmarshal: %w", err)
		}
		if w.WeekStart, err = strAttr(item, "weekStart"); err != nil {
			return nil, fmt.Errorf("repository: ListWeeklySummaries unmarshal: %w", err)
		}
		if w.WeekEnd, err = strAttr(item, "weekEnd"); err != nil {
			return nil, fmt.Errorf("repository: ListWeeklySummaries unmarshal: %w", err)
		}
		if w.Summary, err = strAttr(item, "summary"); err != nil {
			return nil, fmt.Errorf("repository: ListWeeklySummaries unmarshal: %w", err)
		}
		out = append(out, w)
	}
	return out, nil
}

// DeleteWeeklySummary removes the summary for (owner, week start) if present.
func (c *Client) DeleteWeeklySummary(ctx context.Context, owner, weekStart string) error {
	if err := c.deleteKey(ctx, ownerPK(owner), weekSK(weekStart)); err != nil {
		return fmt.Errorf("repository: DeleteWeeklySummary: %w", err)
	}
	return nil
}
