package draft

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDynamo is a single-table, string-keyed stand-in for DynamoDB.
type fakeDynamo struct {
	mu    sync.Mutex
	items map[string]map[string]types.AttributeValue
	err   error
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: make(map[string]map[string]types.AttributeValue)}
}

func keyOf(key map[string]types.AttributeValue) string {
	return key["draftKey"].(*types.AttributeValueMemberS).Value
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &dynamodb.GetItemOutput{Item: f.items[keyOf(in.Key)]}, nil
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.items[keyOf(in.Item)] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	delete(f.items, keyOf(in.Key))
	return &dynamodb.DeleteItemOutput{}, nil
}

func TestDynamoStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	fake := newFakeDynamo()
	store := NewDynamoStore(fake, "intake_drafts", time.Hour)

	_, err := store.Get(ctx, Key("s1"))
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Set(ctx, Key("s1"), []byte(`{"notes":"x"}`)))
	got, err := store.Get(ctx, Key("s1"))
	require.NoError(t, err)
	assert.Equal(t, `{"notes":"x"}`, string(got))

	item := fake.items[Key("s1")]
	expires, ok := item["expiresAt"].(*types.AttributeValueMemberN)
	require.True(t, ok, "expiresAt must be a number for DynamoDB TTL")
	assert.NotEmpty(t, expires.Value)

	require.NoError(t, store.Delete(ctx, Key("s1")))
	_, err = store.Get(ctx, Key("s1"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDynamoStore_ExpiredItemsAreMissing(t *testing.T) {
	ctx := context.Background()
	store := NewDynamoStore(newFakeDynamo(), "intake_drafts", time.Minute)
	clock := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return clock }

	require.NoError(t, store.Set(ctx, Key("s1"), []byte(`{}`)))
	clock = clock.Add(2 * time.Minute)

	_, err := store.Get(ctx, Key("s1"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDynamoStore_Errors(t *testing.T) {
	ctx := context.Background()
	fake := newFakeDynamo()
	fake.err = errors.New("throttled")
	store := NewDynamoStore(fake, "intake_drafts", 0)

	_, err := store.Get(ctx, Key("s1"))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Error(t, store.Set(ctx, Key("s1"), []byte(`{}`)))
	assert.Error(t, store.Delete(ctx, Key("s1")))
}

func TestNewDynamoStore_Panics(t *testing.T) {
	assert.Panics(t, func() { NewDynamoStore(nil, "t", 0) })
	assert.Panics(t, func() { NewDynamoStore(newFakeDynamo(), "", 0) })
}
