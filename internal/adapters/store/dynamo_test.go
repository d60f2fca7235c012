package store

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/rtcpulse/internal/core"
)

type fakePutter struct {
	existing map[string]bool
	puts     []string
	fail     error
}

func (f *fakePutter) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	key := params.Item["clientId"].(*types.AttributeValueMemberS).Value
	if f.existing[key] {
		return nil, &types.ConditionalCheckFailedException{}
	}
	if f.existing == nil {
		f.existing = make(map[string]bool)
	}
	f.existing[key] = true
	f.puts = append(f.puts, key)
	return &dynamodb.PutItemOutput{}, nil
}

func TestSaveUniqueFirstWriterKeepsKey(t *testing.T) {
	fake := &fakePutter{}
	d := &DynamoStore{client: fake, table: "dumps"}

	key, err := d.SaveUnique(context.Background(), core.DumpMeta{ClientID: "abc"})
	require.NoError(t, err)
	assert.Equal(t, "abc", key)
	assert.Equal(t, []string{"abc"}, fake.puts)
}

func TestSaveUniqueDisambiguatesOnCollision(t *testing.T) {
	fake := &fakePutter{existing: map[string]bool{"abc": true, "abc_1": true}}
	d := &DynamoStore{client: fake, table: "dumps"}

	key, err := d.SaveUnique(context.Background(), core.DumpMeta{ClientID: "abc"})
	require.NoError(t, err)
	assert.Equal(t, "abc_2", key)
}

func TestSaveUniquePropagatesOtherErrors(t *testing.T) {
	fake := &fakePutter{fail: errors.New("throughput exceeded")}
	d := &DynamoStore{client: fake, table: "dumps"}

	_, err := d.SaveUnique(context.Background(), core.DumpMeta{ClientID: "abc"})
	assert.Error(t, err)
}

func TestMarshaledItemUsesWireAttributeNames(t *testing.T) {
	item, err := attributevalue.MarshalMap(core.DumpMeta{ClientID: "abc", DumpPath: "/tmp/abc"})
	require.NoError(t, err)

	// The uniqueness condition is attribute_not_exists(clientId); the
	// marshaled item must carry that exact attribute name.
	id, ok := item["clientId"].(*types.AttributeValueMemberS)
	require.True(t, ok)
	assert.Equal(t, "abc", id.Value)

	_, ok = item["dumpPath"]
	assert.True(t, ok)
	_, ok = item["ClientID"]
	assert.False(t, ok)
}

func TestSaveUniqueGivesUpAfterMaxAttempts(t *testing.T) {
	fake := &fakePutter{existing: map[string]bool{
		"abc": true, "abc_1": true, "abc_2": true, "abc_3": true, "abc_4": true,
		"abc_5": true, "abc_6": true, "abc_7": true, "abc_8": true, "abc_9": true,
	}}
	d := &DynamoStore{client: fake, table: "dumps"}

	_, err := d.SaveUnique(context.Background(), core.DumpMeta{ClientID: "abc"})
	assert.Error(t, err)
}
