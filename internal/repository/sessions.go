package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"reflection-journal/internal/domain"
)

// unclaimed is the condition that no finish claim is live at :now.
const unclaimed = "(attribute_not_exists(claimUntil) OR claimUntil <= :now)"

// turnSK returns the sort key of the seq-th turn; zero padding keeps turns
// in conversation order.
func turnSK(seq int) string {
	return fmt.Sprintf("%s%06d", skPrefixTurn, seq)
}

// CreateSession persists the session metadata record with no turns.
func (c *Client) CreateSession(ctx context.Context, s domain.Session) error {
	if s.ID == "" || s.Owner == "" {
		return errors.New("repository: CreateSession: id and owner are required")
	}
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item: map[string]types.AttributeValue{
			"PK":           strValue(sessionPK(s.ID)),
			"SK":           strValue(skMeta),
			"sessionId":    strValue(s.ID),
			"owner":        strValue(s.Owner),
			"name":         strValue(s.Name),
			"startedAt":    strValue(s.StartedAt.UTC().Format(time.RFC3339)),
			"lastActivity": strValue(c.now().UTC().Format(time.RFC3339)),
			"turns":        numValue(0),
			"ttl":          numValue(c.ttlValue()),
		},
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		return fmt.Errorf("repository: CreateSession: %w", err)
	}
	return nil
}

// GetSession loads the session metadata and its turns in order.
func (c *Client) GetSession(ctx context.Context, id string) (domain.Session, error) {
	items, err := c.queryAll(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": strValue(sessionPK(id)),
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.Session{}, fmt.Errorf("repository: GetSession query: %w", err)
	}

	var s domain.Session
	found := false
	for _, item := range items {
		sk, err := strAttr(item, "SK")
		if err != nil {
			return domain.Session{}, fmt.Errorf("repository: GetSession unmarshal: %w", err)
		}
		switch {
		case sk == skMeta:
			if s, err = itemToSessionMeta(item); err != nil {
				return domain.Session{}, fmt.Errorf("repository: GetSession unmarshal: %w", err)
			}
			found = true
		case strings.HasPrefix(sk, skPrefixTurn):
			t, err := itemToTurn(item)
			if err != nil {
				return domain.Session{}, fmt.Errorf("repository: GetSession unmarshal: %w", err)
			}
			s.Turns = append(s.Turns, t)
		}
	}
	if !found {
		return domain.Session{}, fmt.Errorf("repository: GetSession %q: %w", id, domain.ErrNotFound)
	}
	return s, nil
}

// AppendTurns writes turns after the first expected ones and bumps the turn
// counter in one transaction. A concurrent writer or a live finish claim
// makes it fail with domain.ErrConflict.
func (c *Client) AppendTurns(ctx context.Context, id string, expected int, turns ...domain.Turn) error {
	if len(turns) == 0 {
		return nil
	}
	pk := sessionPK(id)
	items := make([]types.TransactWriteItem, 0, len(turns)+1)
	for i, t := range turns {
		items = append(items, types.TransactWriteItem{
			Put: &types.Put{
				TableName: aws.String(c.tableName),
				Item: map[string]types.AttributeValue{
					"PK":   strValue(pk),
					"SK":   strValue(turnSK(expected + i)),
					"role": strValue(string(t.Role)),
					"text": strValue(t.Text),
					"ttl":  numValue(c.ttlValue()),
				},
				ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
			},
		})
	}
	items = append(items, types.TransactWriteItem{
		Update: &types.Update{
			TableName: aws.String(c.tableName),
			Key: map[string]types.AttributeValue{
				"PK": strValue(pk),
				"SK": strValue(skMeta),
			},
			UpdateExpression:    aws.String("SET turns = :next, lastActivity = :activity, #ttl = :ttl"),
			ConditionExpression: aws.String("attribute_exists(PK) AND turns = :expected AND " + unclaimed),
			ExpressionAttributeNames: map[string]string{
				"#ttl": "ttl",
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":next":     numValue(int64(expected + len(turns))),
				":expected": numValue(int64(expected)),
				":activity": strValue(c.now().UTC().Format(time.RFC3339)),
				":now":      numValue(c.now().Unix()),
				":ttl":      numValue(c.ttlValue()),
			},
		},
	})

	_, err := c.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
	if err != nil {
		var canceled *types.TransactionCanceledException
		if errors.As(err, &canceled) {
			return fmt.Errorf("repository: AppendTurns %q: %w", id, domain.ErrConflict)
		}
		return fmt.Errorf("repository: AppendTurns: %w", err)
	}
	return nil
}

// ClaimSession marks the session as being finished until the given time.
// It fails with domain.ErrConflict while another claim is live or when the
// session does not exist.
func (c *Client) ClaimSession(ctx context.Context, id string, until time.Time) error {
	_, err := c.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"PK": strValue(sessionPK(id)),
			"SK": strValue(skMeta),
		},
		UpdateExpression:    aws.String("SET claimUntil = :until"),
		ConditionExpression: aws.String("attribute_exists(PK) AND " + unclaimed),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":until": numValue(until.Unix()),
			":now":   numValue(c.now().Unix()),
		},
	})
	if err != nil {
		var failed *types.ConditionalCheckFailedException
		if errors.As(err, &failed) {
			return fmt.Errorf("repository: ClaimSession %q: %w", id, domain.ErrConflict)
		}
		return fmt.Errorf("repository: ClaimSession: %w", err)
	}
	return nil
}

// ReleaseSession drops a finish claim. Missing sessions are not an error.
func (c *Client) ReleaseSession(ctx context.Context, id string) error {
	_, err := c.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"PK": strValue(sessionPK(id)),
			"SK": strValue(skMeta),
		},
		UpdateExpression:    aws.String("REMOVE claimUntil"),
		ConditionExpression: aws.String("attribute_exists(PK)"),
	})
	if err != nil {
		var failed *types.ConditionalCheckFailedException
		if errors.As(err, &failed) {
			return nil
		}
		return fmt.Errorf("repository: ReleaseSession: %w", err)
	}
	return nil
}

// DeleteSession removes the session and all its turns. Missing sessions are
// not an error.
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	items, err := c.queryAll(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": strValue(sessionPK(id)),
		},
		ProjectionExpression: aws.String("PK, SK"),
	})
	if err != nil {
		return fmt.Errorf("repository: DeleteSession query: %w", err)
	}
	// Turns first so a partial failure never leaves turns without metadata
	// that a retry could not find.
	for i := len(items) - 1; i >= 0; i-- {
		sk, err := strAttr(items[i], "SK")
		if err != nil {
			return fmt.Errorf("repository: DeleteSession: %w", err)
		}
		if err := c.deleteKey(ctx, sessionPK(id), sk); err != nil {
			return fmt.Errorf("repository: DeleteSession: %w", err)
		}
	}
	return nil
}

func itemToSessionMeta(item map[string]types.AttributeValue) (domain.Session, error) {
	var s domain.Session
	var err error
	if s.ID, err = strAttr(item, "sessionId"); err != nil {
		return domain.Session{}, err
	}
	if s.Owner, err = strAttr(item, "owner"); err != nil {
		return domain.Session{}, err
	}
	s.Name, _ = strAttr(item, "name") // allow empty
	started, err := strAttr(item, "startedAt")
	if err != nil {
		return domain.Session{}, err
	}
	if s.StartedAt, err = time.Parse(time.RFC3339, started); err != nil {
		return domain.Session{}, fmt.Errorf("repository: parse startedAt: %w", err)
	}
	return s, nil
}

func itemToTurn(item map[string]types.AttributeValue) (domain.Turn, error) {
	role, err := strAttr(item, "role")
	if err != nil {
		return domain.Turn{}, err
	}
	text, err := strAttr(item, "text")
	if err != nil {
		return domain.Turn{}, err
	}
	return domain.Turn{Role: domain.Role(role), Text: text}, nil
}
