package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"

	"widget-preview/internal/storage"
)

type fakeDynamo struct {
	getOut        *dynamodb.GetItemOutput
	getErr        error
	putErr        error
	queryOuts     []*dynamodb.QueryOutput
	queryErr      error
	updateErr     error
	deleteErr     error
	describeErr   error
	lastGetInput  *dynamodb.GetItemInput
	lastPutInput  *dynamodb.PutItemInput
	queryInputs   []*dynamodb.QueryInput
	lastUpdateIn  *dynamodb.UpdateItemInput
	lastDeleteIn  *dynamodb.DeleteItemInput
	describeCalls int
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.lastGetInput = in
	return f.getOut, f.getErr
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.lastPutInput = in
	return &dynamodb.PutItemOutput{}, f.putErr
}

func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.queryInputs = append(f.queryInputs, in)
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	if len(f.queryOuts) == 0 {
		return &dynamodb.QueryOutput{}, nil
	}
	out := f.queryOuts[0]
	f.queryOuts = f.queryOuts[1:]
	return out, nil
}

func (f *fakeDynamo) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.lastUpdateIn = in
	return &dynamodb.UpdateItemOutput{}, f.updateErr
}

func (f *fakeDynamo) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.lastDeleteIn = in
	return &dynamodb.DeleteItemOutput{}, f.deleteErr
}

func (f *fakeDynamo) DescribeTable(_ context.Context, _ *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	f.describeCalls++
	return &dynamodb.DescribeTableOutput{}, f.describeErr
}

func makeItem(pk, sk string, extra map[string]types.AttributeValue) map[string]types.AttributeValue {
	item := map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: sk},
	}
	for k, v := range extra {
		item[k] = v
	}
	return item
}

func mustNewClient(t *testing.T, db *fakeDynamo) *Client {
	t.Helper()
	c, err := New(db, "test-table")
	require.NoError(t, err)
	return c
}

func TestCreate_HappyPath(t *testing.T) {
	orig := newUUID
	newUUID = func() string { return "11111111-2222-3333-4444-555555555555" }
	defer func() { newUUID = orig }()

	db := &fakeDynamo{}
	c := mustNewClient(t, db)
	id, err := c.Create(context.Background(), storage.TableClients, storage.Row{
		"id": "ignored", "name": "Acme Co", "isActive": true, "count": 2.0,
	})
	require.NoError(t, err)
	require.Equal(t, "11111111-2222-3333-4444-555555555555", id)

	item := db.lastPutInput.Item
	require.Equal(t, "CLIENTS#", item["PK"].(*types.AttributeValueMemberS).Value)
	require.Equal(t, id, item["SK"].(*types.AttributeValueMemberS).Value)
	require.Equal(t, "Acme Co", item["name"].(*types.AttributeValueMemberS).Value)
	require.True(t, item["isActive"].(*types.AttributeValueMemberBOOL).Value)
	require.Equal(t, "2", item["count"].(*types.AttributeValueMemberN).Value)
	require.NotContains(t, item, "id")
	require.Equal(t, "attribute_not_exists(PK) AND attribute_not_exists(SK)", *db.lastPutInput.ConditionExpression)
}

func TestCreate_DynamoError(t *testing.T) {
	db := &fakeDynamo{putErr: errors.New("ProvisionedThroughputExceededException")}
	_, err := mustNewClient(t, db).Create(context.Background(), storage.TableScripts, storage.Row{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "Create")
}

func TestList_Paginates(t *testing.T) {
	db := &fakeDynamo{queryOuts: []*dynamodb.QueryOutput{
		{
			Items: []map[string]types.AttributeValue{
				makeItem("SCRIPTS#", "a", map[string]types.AttributeValue{"title": &types.AttributeValueMemberS{Value: "A"}}),
			},
			LastEvaluatedKey: makeItem("SCRIPTS#", "a", nil),
		},
		{
			Items: []map[string]types.AttributeValue{
				makeItem("SCRIPTS#", "b", map[string]types.AttributeValue{"isActive": &types.AttributeValueMemberBOOL{Value: false}}),
			},
		},
	}}
	rows, err := mustNewClient(t, db).List(context.Background(), storage.TableScripts)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, storage.Row{"id": "a", "title": "A"}, rows[0])
	require.Equal(t, false, rows[1]["isActive"])
	require.Len(t, db.queryInputs, 2)
	require.Equal(t, "PK = :pk", *db.queryInputs[0].KeyConditionExpression)
	require.NotNil(t, db.queryInputs[1].ExclusiveStartKey)
}

func TestList_QueryError(t *testing.T) {
	db := &fakeDynamo{queryErr: errors.New("ResourceNotFoundException")}
	_, err := mustNewClient(t, db).List(context.Background(), storage.TableClients)
	require.Error(t, err)
	require.Contains(t, err.Error(), "List")
}

func TestGet(t *testing.T) {
	db := &fakeDynamo{getOut: &dynamodb.GetItemOutput{Item: makeItem("CLIENTS#", "c1", map[string]types.AttributeValue{
		"slug": &types.AttributeValueMemberS{Value: "acme-co"},
	})}}
	row, err := mustNewClient(t, db).Get(context.Background(), storage.TableClients, "c1")
	require.NoError(t, err)
	require.Equal(t, "c1", row.String("id"))
	require.Equal(t, "acme-co", row.String("slug"))
	require.True(t, *db.lastGetInput.ConsistentRead)
}

func TestGet_Missing(t *testing.T) {
	db := &fakeDynamo{getOut: &dynamodb.GetItemOutput{}}
	_, err := mustNewClient(t, db).Get(context.Background(), storage.TableClients, "c1")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestGet_MalformedItem(t *testing.T) {
	db := &fakeDynamo{getOut: &dynamodb.GetItemOutput{Item: map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: "CLIENTS#"},
	}}}
	_, err := mustNewClient(t, db).Get(context.Background(), storage.TableClients, "c1")
	require.Error(t, err)
	require.Contains(t, err.Error(), "SK")
}

func TestUpdate_BuildsSetExpression(t *testing.T) {
	db := &fakeDynamo{}
	err := mustNewClient(t, db).Update(context.Background(), storage.TableScripts, "s1", storage.Row{
		"title": "New", "isActive": false, "id": "x",
	})
	require.NoError(t, err)
	in := db.lastUpdateIn
	require.Equal(t, "SET #f1 = :v1, #f2 = :v2", *in.UpdateExpression)
	require.Equal(t, map[string]string{"#f1": "isActive", "#f2": "title"}, in.ExpressionAttributeNames)
	require.Equal(t, "attribute_exists(SK)", *in.ConditionExpression)
}

func TestUpdate_Missing(t *testing.T) {
	db := &fakeDynamo{updateErr: &types.ConditionalCheckFailedException{}}
	err := mustNewClient(t, db).Update(context.Background(), storage.TableScripts, "s1", storage.Row{"title": "x"})
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestUpdate_EmptyPartialIsNoop(t *testing.T) {
	db := &fakeDynamo{}
	require.NoError(t, mustNewClient(t, db).Update(context.Background(), storage.TableScripts, "s1", storage.Row{"id": "s1"}))
	require.Nil(t, db.lastUpdateIn)
}

func TestDelete(t *testing.T) {
	db := &fakeDynamo{}
	require.NoError(t, mustNewClient(t, db).Delete(context.Background(), storage.TableConversations, "e1"))
	require.Equal(t, "CONVERSATIONS#", db.lastDeleteIn.Key["PK"].(*types.AttributeValueMemberS).Value)

	db = &fakeDynamo{deleteErr: &types.ConditionalCheckFailedException{}}
	require.ErrorIs(t, mustNewClient(t, db).Delete(context.Background(), storage.TableConversations, "e1"), storage.ErrNotFound)
}

func TestPing(t *testing.T) {
	db := &fakeDynamo{}
	require.NoError(t, mustNewClient(t, db).Ping(context.Background()))
	require.Equal(t, 1, db.describeCalls)

	db = &fakeDynamo{describeErr: errors.New("AccessDenied")}
	require.ErrorContains(t, mustNewClient(t, db).Ping(context.Background()), "AccessDenied")
}

func TestConfigured(t *testing.T) {
	c := mustNewClient(t, &fakeDynamo{})
	for _, table := range storage.Tables {
		require.True(t, c.Configured(table))
	}
}

func TestTablePK(t *testing.T) {
	require.Equal(t, "SCRIPTS#", tablePK(storage.TableScripts))
}

func TestNew_NilAPI(t *testing.T) {
	_, err := New(nil, "test-table")
	require.Error(t, err)
	require.Contains(t, err.Error(), "must not be nil")
}

func TestNew_EmptyTableName(t *testing.T) {
	_, err := New(&fakeDynamo{}, " ")
	require.Error(t, err)
	require.Contains(t, err.Error(), "must not be empty")
}
