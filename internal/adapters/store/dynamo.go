package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/rtcpulse/internal/core"
)

// Collision suffixes beyond this indicate a key generation bug, not a
// genuine clash.
const maxKeyAttempts = 10

// conditionalPutter is the slice of the DynamoDB client SaveUnique
// needs; tests substitute a fake.
type conditionalPutter interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// DynamoStore writes one metadata item per session record, keyed by
// client id.
type DynamoStore struct {
	client conditionalPutter
	table  string
}

func NewDynamoStore(client *dynamodb.Client, table string) *DynamoStore {
	return &DynamoStore{client: client, table: table}
}

// SaveUnique inserts the metadata entry under its client id. When a
// reconnecting client reuses an id, the write retries under clientId_1,
// clientId_2 and so on; the key actually written is returned so callers
// can align the blob upload with it.
func (d *DynamoStore) SaveUnique(ctx context.Context, meta core.DumpMeta) (string, error) {
	base := meta.ClientID
	for attempt := 0; attempt < maxKeyAttempts; attempt++ {
		key := base
		if attempt > 0 {
			key = fmt.Sprintf("%s_%d", base, attempt)
		}
		meta.ClientID = key

		item, err := attributevalue.MarshalMap(meta)
		if err != nil {
			return "", fmt.Errorf("marshal metadata for %s: %w", key, err)
		}

		_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName:           aws.String(d.table),
			Item:                item,
			ConditionExpression: aws.String("attribute_not_exists(clientId)"),
		})
		if err == nil {
			if attempt > 0 {
				log.Info().Str("module", "store").Str("clientId", base).Str("key", key).Msg("metadata key collision, saved under suffixed key")
			}
			return key, nil
		}

		var conditionFailed *types.ConditionalCheckFailedException
		if !errors.As(err, &conditionFailed) {
			return "", fmt.Errorf("save metadata %s: %w", key, err)
		}
	}
	return "", fmt.Errorf("save metadata %s: %d keys already taken", base, maxKeyAttempts)
}
