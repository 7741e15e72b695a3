package dialogue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type dynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// sessionRecord is the table item. DynamoDB TTL deletion lags, so ExpiresAt
// is also checked on read.
type sessionRecord struct {
	CallID    string `dynamodbav:"callId"`
	State     string `dynamodbav:"state"`
	Payload   string `dynamodbav:"payload"`
	UpdatedAt string `dynamodbav:"updatedAt"`
	ExpiresAt int64  `dynamodbav:"expiresAt"`
}

// DynamoStore keeps sessions in a DynamoDB table keyed by callId with TTL on
// expiresAt.
type DynamoStore struct {
	client dynamoAPI
	table  string
	now    func() time.Time
}

func NewDynamoStore(client dynamoAPI, table string) *DynamoStore {
	if client == nil {
		panic("dialogue: dynamodb client cannot be nil")
	}
	if strings.TrimSpace(table) == "" {
		panic("dialogue: dynamodb table name cannot be empty")
	}
	return &DynamoStore{client: client, table: table, now: time.Now}
}

func (s *DynamoStore) key(callID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"callId": &types.AttributeValueMemberS{Value: callID},
	}
}

func (s *DynamoStore) Get(ctx context.Context, callID string) (*Session, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            s.key(callID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("dialogue: get session: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return nil, nil
	}
	var rec sessionRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("dialogue: decode session item: %w", err)
	}
	if rec.ExpiresAt > 0 && rec.ExpiresAt <= s.now().Unix() {
		return nil, nil
	}
	var sess Session
	if err := json.Unmarshal([]byte(rec.Payload), &sess); err != nil {
		return nil, fmt.Errorf("dialogue: unmarshal session: %w", err)
	}
	return &sess, nil
}

func (s *DynamoStore) Put(ctx context.Context, sess *Session, ttl time.Duration) error {
	if sess == nil || sess.CallID == "" {
		return fmt.Errorf("dialogue: session call_id required")
	}
	payload, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("dialogue: marshal session: %w", err)
	}
	now := s.now().UTC()
	item, err := attributevalue.MarshalMap(sessionRecord{
		CallID:    sess.CallID,
		State:     string(sess.State),
		Payload:   string(payload),
		UpdatedAt: now.Format(time.RFC3339),
		ExpiresAt: now.Add(ttl).Unix(),
	})
	if err != nil {
		return fmt.Errorf("dialogue: encode session item: %w", err)
	}
	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("dialogue: put session: %w", err)
	}
	return nil
}

func (s *DynamoStore) Delete(ctx context.Context, callID string) error {
	if _, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key:       s.key(callID),
	}); err != nil {
		return fmt.Errorf("dialogue: delete session: %w", err)
	}
	return nil
}
