package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"

	"reflection-journal/internal/domain"
)

func makeSessionMeta(id string, turns int64) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":        strValue("SESSION#" + id),
		"SK":        strValue(skMeta),
		"sessionId": strValue(id),
		"owner":     strValue("a@example.com"),
		"name":      strValue("Ana"),
		"startedAt": strValue("2024-01-04T09:00:00Z"),
		"turns":     numValue(turns),
	}
}

func makeTurnItem(id string, seq int, role, text string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":   strValue("SESSION#" + id),
		"SK":   strValue(turnSK(seq)),
		"role": strValue(role),
		"text": strValue(text),
	}
}

func TestCreateSession_HappyPath(t *testing.T) {
	db := &fakeDynamo{}
	c := mustNewClient(t, db)
	err := c.CreateSession(context.Background(), domain.Session{
		ID: "s1", Owner: "a@example.com", Name: "Ana", StartedAt: fixedNow,
	})
	require.NoError(t, err)
	require.Equal(t, "SESSION#s1", sAttr(db.lastPutIn.Item, "PK"))
	require.Equal(t, skMeta, sAttr(db.lastPutIn.Item, "SK"))
	ttl := db.lastPutIn.Item["ttl"].(*types.AttributeValueMemberN).Value
	require.Equal(t, numValue(fixedNow.Add(defaultTTL).Unix()).(*types.AttributeValueMemberN).Value, ttl)
}

func TestCreateSession_Validation(t *testing.T) {
	c := mustNewClient(t, &fakeDynamo{})
	require.Error(t, c.CreateSession(context.Background(), domain.Session{ID: "s1"}))
}

func TestGetSession_HappyPath(t *testing.T) {
	db := &fakeDynamo{queryOuts: []*dynamodb.QueryOutput{{Items: []map[string]types.AttributeValue{
		makeSessionMeta("s1", 2),
		makeTurnItem("s1", 0, "user", "Hi"),
		makeTurnItem("s1", 1, "assistant", "Hello, how are you?"),
	}}}}
	c := mustNewClient(t, db)

	s, err := c.GetSession(context.Background(), "s1")
	require.NoError(t, err)
	require.Equal(t, "s1", s.ID)
	require.Equal(t, "Ana", s.Name)
	require.Equal(t, time.Date(2024, 1, 4, 9, 0, 0, 0, time.UTC), s.StartedAt)
	require.Equal(t, []domain.Turn{
		{Role: domain.RoleUser, Text: "Hi"},
		{Role: domain.RoleAssistant, Text: "Hello, how are you?"},
	}, s.Turns)
	require.True(t, *db.queryIns[0].ConsistentRead)
}

func TestGetSession_NotFound(t *testing.T) {
	c := mustNewClient(t, &fakeDynamo{})
	_, err := c.GetSession(context.Background(), "nope")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGetSession_QueryError(t *testing.T) {
	c := mustNewClient(t, &fakeDynamo{queryErr: errors.New("boom")})
	_, err := c.GetSession(context.Background(), "s1")
	require.Error(t, err)
	require.NotErrorIs(t, err, domain.ErrNotFound)
}

func TestAppendTurns_BuildsTransaction(t *testing.T) {
	db := &fakeDynamo{}
	c := mustNewClient(t, db)
	err := c.AppendTurns(context.Background(), "s1", 2,
		domain.Turn{Role: domain.RoleUser, Text: "I feel tired"},
		domain.Turn{Role: domain.RoleAssistant, Text: "Tell me more"},
	)
	require.NoError(t, err)
	require.NotNil(t, db.lastTxInput)
	items := db.lastTxInput.TransactItems
	require.Len(t, items, 3)
	require.Equal(t, "TURN#000002", sAttr(items[0].Put.Item, "SK"))
	require.Equal(t, "TURN#000003", sAttr(items[1].Put.Item, "SK"))
	upd := items[2].Update
	require.NotNil(t, upd)
	require.Equal(t, "2", upd.ExpressionAttributeValues[":expected"].(*types.AttributeValueMemberN).Value)
	require.Equal(t, "4", upd.ExpressionAttributeValues[":next"].(*types.AttributeValueMemberN).Value)
	require.Contains(t, *upd.ConditionExpression, "claimUntil <= :now")
	require.Equal(t, "1704362400", upd.ExpressionAttributeValues[":now"].(*types.AttributeValueMemberN).Value)
}

func TestAppendTurns_NoTurnsIsNoop(t *testing.T) {
	db := &fakeDynamo{}
	c := mustNewClient(t, db)
	require.NoError(t, c.AppendTurns(context.Background(), "s1", 0))
	require.Nil(t, db.lastTxInput)
}

func TestAppendTurns_CanceledIsConflict(t *testing.T) {
	db := &fakeDynamo{txErr: &types.TransactionCanceledException{Message: strPtr("conditional check failed")}}
	c := mustNewClient(t, db)
	err := c.AppendTurns(context.Background(), "s1", 0, domain.Turn{Role: domain.RoleUser, Text: "hi"})
	require.ErrorIs(t, err, domain.ErrConflict)
}

func TestAppendTurns_OtherError(t *testing.T) {
	c := mustNewClient(t, &fakeDynamo{txErr: errors.New("boom")})
	err := c.AppendTurns(context.Background(), "s1", 0, domain.Turn{Role: domain.RoleUser, Text: "hi"})
	require.Error(t, err)
	require.NotErrorIs(t, err, domain.ErrConflict)
}

func TestDeleteSession_DeletesAllKeys(t *testing.T) {
	db := &fakeDynamo{queryOuts: []*dynamodb.QueryOutput{{Items: []map[string]types.AttributeValue{
		{"PK": strValue("SESSION#s1"), "SK": strValue(skMeta)},
		{"PK": strValue("SESSION#s1"), "SK": strValue("TURN#000000")},
	}}}}
	c := mustNewClient(t, db)
	require.NoError(t, c.DeleteSession(context.Background(), "s1"))
	require.Len(t, db.deleteIns, 2)
	require.Equal(t, "TURN#000000", sAttr(db.deleteIns[0].Key, "SK"))
	require.Equal(t, skMeta, sAttr(db.deleteIns[1].Key, "SK"))
}

func strPtr(s string) *string { return &s }

func TestClaimSession_ConditionalUpdate(t *testing.T) {
	db := &fakeDynamo{}
	c := mustNewClient(t, db)
	require.NoError(t, c.ClaimSession(context.Background(), "s1", fixedNow.Add(15*time.Minute)))

	require.Len(t, db.updateIns, 1)
	in := db.updateIns[0]
	require.Equal(t, "SESSION#s1", sAttr(in.Key, "PK"))
	require.Equal(t, skMeta, sAttr(in.Key, "SK"))
	require.Equal(t, "SET claimUntil = :until", *in.UpdateExpression)
	require.Equal(t, "attribute_exists(PK) AND "+unclaimed, *in.ConditionExpression)
	require.Equal(t, "1704363300", in.ExpressionAttributeValues[":until"].(*types.AttributeValueMemberN).Value)
	require.Equal(t, "1704362400", in.ExpressionAttributeValues[":now"].(*types.AttributeValueMemberN).Value)
}

func TestClaimSession_HeldIsConflict(t *testing.T) {
	db := &fakeDynamo{updateErr: &types.ConditionalCheckFailedException{Message: strPtr("claimed")}}
	c := mustNewClient(t, db)
	err := c.ClaimSession(context.Background(), "s1", fixedNow.Add(time.Minute))
	require.ErrorIs(t, err, domain.ErrConflict)

	c = mustNewClient(t, &fakeDynamo{updateErr: errors.New("throttled")})
	err = c.ClaimSession(context.Background(), "s1", fixedNow.Add(time.Minute))
	require.Error(t, err)
	require.NotErrorIs(t, err, domain.ErrConflict)
}

func TestReleaseSession(t *testing.T) {
	db := &fakeDynamo{}
	c := mustNewClient(t, db)
	require.NoError(t, c.ReleaseSession(context.Background(), "s1"))
	require.Equal(t, "REMOVE claimUntil", *db.updateIns[0].UpdateExpression)
	require.Equal(t, "attribute_exists(PK)", *db.updateIns[0].ConditionExpression)

	missing := mustNewClient(t, &fakeDynamo{updateErr: &types.ConditionalCheckFailedException{Message: strPtr("gone")}})
	require.NoError(t, missing.ReleaseSession(context.Background(), "s1"))

	failing := mustNewClient(t, &fakeDynamo{updateErr: errors.New("throttled")})
	require.Error(t, failing.ReleaseSession(context.Background(), "s1"))
}
