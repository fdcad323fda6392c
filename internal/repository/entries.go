package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"reflection-journal/internal/domain"
)

// entrySK sorts entries by (date, time) within an owner partition; the id
// keeps keys unique for entries written in the same second.
func entrySK(e domain.Entry) string {
	return skPrefixEntry + e.Date + "#" + e.Time + "#" + e.ID
}

// AppendEntry assigns an id and persists the entry.
func (c *Client) AppendEntry(ctx context.Context, e domain.Entry) (domain.Entry, error) {
	if e.Owner == "" {
		return domain.Entry{}, errors.New("repository: AppendEntry: owner is required")
	}
	if e.Date == "" || e.Time == "" {
		return domain.Entry{}, errors.New("repository: AppendEntry: date and time are required")
	}
	e.ID = newID()
	e.Emotions = domain.EmotionsFromStrings(domain.EmotionStrings(e.Emotions))
	e.People = domain.NormalizeTags(e.People)
	e.Topics = domain.NormalizeTags(e.Topics)

	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.tableName),
		Item:                entryItem(e),
		ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	})
	if err != nil {
		return domain.Entry{}, fmt.Errorf("repository: AppendEntry: %w", err)
	}
	return e, nil
}

// ListEntries returns the owner's entries newest first.
func (c *Client) ListEntries(ctx context.Context, owner string) ([]domain.Entry, error) {
	items, err := c.queryAll(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     strValue(ownerPK(owner)),
			":prefix": strValue(skPrefixEntry),
		},
		ScanIndexForward: aws.Bool(false),
	})
	if err != nil {
		return nil, fmt.Errorf("repository: ListEntries query: %w", err)
	}

	entries := make([]domain.Entry, 0, len(items))
	for _, item := range items {
		e, err := itemToEntry(item)
		if err != nil {
			return nil, fmt.Errorf("repository: ListEntries unmarshal: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// CountEntries returns the number of entries the owner has.
func (c *Client) CountEntries(ctx context.Context, owner string) (int, error) {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     strValue(ownerPK(owner)),
			":prefix": strValue(skPrefixEntry),
		},
		Select: types.SelectCount,
	}
	total := 0
	for {
		out, err := c.api.Query(ctx, in)
		if err != nil {
			return 0, fmt.Errorf("repository: CountEntries query: %w", err)
		}
		if out == nil {
			return total, nil
		}
		total += int(out.Count)
		if len(out.LastEvaluatedKey) == 0 {
			return total, nil
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

// DeleteEntry removes the owner's entry with the given id. Unknown ids are
// not an error.
func (c *Client) DeleteEntry(ctx context.Context, owner, id string) error {
	items, err := c.queryAll(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		FilterExpression:       aws.String("#id = :id"),
		ProjectionExpression:   aws.String("PK, SK"),
		ExpressionAttributeNames: map[string]string{
			"#id": "id",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     strValue(ownerPK(owner)),
			":prefix": strValue(skPrefixEntry),
			":id":     strValue(id),
		},
	})
	if err != nil {
		return fmt.Errorf("repository: DeleteEntry query: %w", err)
	}
	for _, item := range items {
		sk, err := strAttr(item, "SK")
		if err != nil {
			return fmt.Errorf("repository: DeleteEntry: %w", err)
		}
		if err := c.deleteKey(ctx, ownerPK(owner), sk); err != nil {
			return fmt.Errorf("repository: DeleteEntry: %w", err)
		}
	}
	return nil
}

func entryItem(e domain.Entry) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":       strValue(ownerPK(e.Owner)),
		"SK":       strValue(entrySK(e)),
		"id":       strValue(e.ID),
		"owner":    strValue(e.Owner),
		"date":     strValue(e.Date),
		"time":     strValue(e.Time),
		"summary":  strValue(e.Summary),
		"emotions": listValue(domain.EmotionStrings(e.Emotions)),
		"people":   listValue(e.People),
		"topics":   listValue(e.Topics),
	}
}

// itemToEntry converts a DynamoDB attribute map to an Entry, dropping the
// "None" sentinel that older rows may carry.
func itemToEntry(item map[string]types.AttributeValue) (domain.Entry, error) {
	var e domain.Entry
	var err error
	if e.ID, err = strAttr(item, "id"); err != nil {
		return domain.Entry{}, err
	}
	if e.Owner, err = strAttr(item, "owner"); err != nil {
		return domain.Entry{}, err
	}
	if e.Date, err = strAttr(item, "date"); err != nil {
		return domain.Entry{}, err
	}
	if e.Time, err = strAttr(item, "time"); err != nil {
		return domain.Entry{}, err
	}
	if e.Summary, err = strAttr(item, "summary"); err != nil {
		return domain.Entry{}, err
	}
	emotions, err := listAttr(item, "emotions")
	if err != nil {
		return domain.Entry{}, err
	}
	people, err := listAttr(item, "people")
	if err != nil {
		return domain.Entry{}, err
	}
	topics, err := listAttr(item, "topics")
	if err != nil {
		return domain.Entry{}, err
	}
	e.Emotions = domain.EmotionsFromStrings(emotions)
	e.People = domain.NormalizeTags(people)
	e.Topics = domain.NormalizeTags(topics)
	return e, nil
}

var newID = func() string {
	return uuid.NewString()
}
