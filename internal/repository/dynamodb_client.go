package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"widget-preview/internal/storage"
)

const (
	attrPK = "PK"
	attrSK = "SK"
)

var newUUID = func() string { return uuid.NewString() }

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// Client stores every record table in one DynamoDB table. The partition key
// is the upper-cased table name followed by "#", the sort key is the row id.
type Client struct {
	api       dynamodbAPI
	tableName string
}

// New creates a new repository Client.
func New(api dynamodbAPI, tableName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Client{api: api, tableName: tableName}, nil
}

// Configured is true for every table; the DynamoDB table holds them all.
func (c *Client) Configured(storage.Table) bool {
	return true
}

func tablePK(table storage.Table) string {
	return strings.ToUpper(string(table)) + "#"
}

func (c *Client) key(table storage.Table, id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrPK: &types.AttributeValueMemberS{Value: tablePK(table)},
		attrSK: &types.AttributeValueMemberS{Value: id},
	}
}

// Create writes row under a fresh uuid.
func (c *Client) Create(ctx context.Context, table storage.Table, row storage.Row) (string, error) {
	id := newUUID()
	item, err := rowItem(row)
	if err != nil {
		return "", fmt.Errorf("repository: Create: %w", err)
	}
	maps.Copy(item, c.key(table, id))

	_, err = c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	})
	if err != nil {
		return "", fmt.Errorf("repository: Create: %w", err)
	}
	return id, nil
}

// List queries the table's partition, following LastEvaluatedKey.
func (c *Client) List(ctx context.Context, table storage.Table) ([]storage.Row, error) {
	rows := []storage.Row{}
	var startKey map[string]types.AttributeValue
	for {
		out, err := c.api.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(c.tableName),
			KeyConditionExpression: aws.String("PK = :pk"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk": &types.AttributeValueMemberS{Value: tablePK(table)},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("repository: List query: %w", err)
		}
		for _, item := range out.Items {
			row, err := itemRow(item)
			if err != nil {
				return nil, fmt.Errorf("repository: List unmarshal: %w", err)
			}
			rows = append(rows, row)
		}
		if len(out.LastEvaluatedKey) == 0 {
			return rows, nil
		}
		startKey = out.LastEvaluatedKey
	}
}

func (c *Client) Get(ctx context.Context, table storage.Table, id string) (storage.Row, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(c.tableName),
		Key:            c.key(table, id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("repository: Get: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return nil, storage.ErrNotFound
	}
	row, err := itemRow(out.Item)
	if err != nil {
		return nil, fmt.Errorf("repository: Get unmarshal: %w", err)
	}
	return row, nil
}

// Update sets every field of partial on an existing item.
func (c *Client) Update(ctx context.Context, table storage.Table, id string, partial storage.Row) error {
	names := map[string]string{}
	values := map[string]types.AttributeValue{}
	sets := []string{}
	for i, field := range slices.Sorted(maps.Keys(partial)) {
		if field == storage.FieldID || field == attrPK || field == attrSK {
			continue
		}
		av, err := toAttr(partial[field])
		if err != nil {
			return fmt.Errorf("repository: Update field %q: %w", field, err)
		}
		n, v := "#f"+strconv.Itoa(i), ":v"+strconv.Itoa(i)
		names[n] = field
		values[v] = av
		sets = append(sets, n+" = "+v)
	}
	if len(sets) == 0 {
		return nil
	}

	_, err := c.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(c.tableName),
		Key:                       c.key(table, id),
		UpdateExpression:          aws.String("SET " + strings.Join(sets, ", ")),
		ConditionExpression:       aws.String("attribute_exists(SK)"),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	if err != nil {
		return fmt.Errorf("repository: Update: %w", conditionFailed(err))
	}
	return nil
}

func (c *Client) Delete(ctx context.Context, table storage.Table, id string) error {
	_, err := c.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(c.tableName),
		Key:                 c.key(table, id),
		ConditionExpression: aws.String("attribute_exists(SK)"),
	})
	if err != nil {
		return fmt.Errorf("repository: Delete: %w", conditionFailed(err))
	}
	return nil
}

// Ping checks that the table exists and is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(c.tableName)}); err != nil {
		return fmt.Errorf("repository: Ping: %w", err)
	}
	return nil
}

func conditionFailed(err error) error {
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return storage.ErrNotFound
	}
	return err
}

func rowItem(row storage.Row) (map[string]types.AttributeValue, error) {
	item := make(map[string]types.AttributeValue, len(row)+2)
	for k, v := range row {
		if k == storage.FieldID || k == attrPK || k == attrSK {
			continue
		}
		av, err := toAttr(v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		item[k] = av
	}
	return item, nil
}

// itemRow converts an item back to a row; the sort key becomes the id.
func itemRow(item map[string]types.AttributeValue) (storage.Row, error) {
	sk, err := strAttr(item, attrSK)
	if err != nil {
		return nil, err
	}
	row := storage.Row{storage.FieldID: sk}
	for k, av := range item {
		if k == attrPK || k == attrSK {
			continue
		}
		v, err := fromAttr(av)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", k, err)
		}
		row[k] = v
	}
	return row, nil
}

func toAttr(v any) (types.AttributeValue, error) {
	switch t := v.(type) {
	case nil:
		return &types.AttributeValueMemberNULL{Value: true}, nil
	case string:
		return &types.AttributeValueMemberS{Value: t}, nil
	case bool:
		return &types.AttributeValueMemberBOOL{Value: t}, nil
	case int:
		return &types.AttributeValueMemberN{Value: strconv.Itoa(t)}, nil
	case int64:
		return &types.AttributeValueMemberN{Value: strconv.FormatInt(t, 10)}, nil
	case float64:
		return &types.AttributeValueMemberN{Value: strconv.FormatFloat(t, 'f', -1, 64)}, nil
	default:
		// Nested values are kept as their JSON text.
		buf, err := json.Marshal(t)
		if err != nil {
			return nil, err
		}
		return &types.AttributeValueMemberS{Value: string(buf)}, nil
	}
}

func fromAttr(av types.AttributeValue) (any, error) {
	switch t := av.(type) {
	case *types.AttributeValueMemberS:
		return t.Value, nil
	case *types.AttributeValueMemberBOOL:
		return t.Value, nil
	case *types.AttributeValueMemberNULL:
		return nil, nil
	case *types.AttributeValueMemberN:
		f, err := strconv.ParseFloat(t.Value, 64)
		if err != nil {
			return nil, fmt.Errorf("parse number: %w", err)
		}
		return f, nil
	default:
		return nil, fmt.Errorf("unsupported attribute type %T", av)
	}
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}
