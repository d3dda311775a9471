package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/meridianbio/pipeline"
)

// DynamoDBStore implements pipeline.StateStore using a single DynamoDB
// table. One item per workflow holds the full snapshot; the status GSI
// serves ListWorkflows.
type DynamoDBStore struct {
	client    DynamoDBClient
	tableName string
}

// NewDynamoDBStore creates a DynamoDB-backed state store
func NewDynamoDBStore(client DynamoDBClient, tableName string) *DynamoDBStore {
	return &DynamoDBStore{
		client:    client,
		tableName: tableName,
	}
}

// CreateWorkflow persists the initial snapshot, failing if the id exists
func (s *DynamoDBStore) CreateWorkflow(ctx context.Context, state *pipeline.WorkflowState) error {
	item, err := s.marshalItem(state)
	if err != nil {
		return err
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("workflow %s already exists", state.WorkflowID)
		}
		return fmt.Errorf("failed to create workflow: %w", err)
	}
	return nil
}

// SaveWorkflow overwrites the snapshot
func (s *DynamoDBStore) SaveWorkflow(ctx context.Context, state *pipeline.WorkflowState) error {
	item, err := s.marshalItem(state)
	if err != nil {
		return err
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to save workflow: %w", err)
	}
	return nil
}

// GetWorkflow retrieves the latest snapshot
func (s *DynamoDBStore) GetWorkflow(ctx context.Context, workflowID string) (*pipeline.WorkflowState, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			AttrPK: &types.AttributeValueMemberS{Value: workflowPK(workflowID)},
			AttrSK: &types.AttributeValueMemberS{Value: workflowSK()},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow: %w", err)
	}
	if result.Item == nil {
		return nil, pipeline.ErrWorkflowNotFound
	}

	var state pipeline.WorkflowState
	if err := attributevalue.UnmarshalMap(result.Item, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal workflow: %w", err)
	}
	return &state, nil
}

// ListWorkflows queries the status GSI. An empty status filter is not
// supported by the single-table layout and returns an error.
func (s *DynamoDBStore) ListWorkflows(ctx context.Context, filter pipeline.ListFilter) ([]*pipeline.WorkflowState, error) {
	if filter.Status == "" {
		return nil, fmt.Errorf("listing requires a status filter")
	}

	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		IndexName:              aws.String(IndexStatusIndex),
		KeyConditionExpression: aws.String("GSI1PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: workflowGSI1PK(string(filter.Status))},
		},
		ScanIndexForward: aws.Bool(false),
	}
	if filter.Limit > 0 {
		input.Limit = aws.Int32(int32(filter.Limit))
	}

	result, err := s.client.Query(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	out := make([]*pipeline.WorkflowState, 0, len(result.Items))
	for _, item := range result.Items {
		var state pipeline.WorkflowState
		if err := attributevalue.UnmarshalMap(item, &state); err != nil {
			return nil, fmt.Errorf("failed to unmarshal workflow: %w", err)
		}
		out = append(out, &state)
	}
	return out, nil
}

// marshalItem renders the snapshot plus table and index keys
func (s *DynamoDBStore) marshalItem(state *pipeline.WorkflowState) (map[string]types.AttributeValue, error) {
	item, err := attributevalue.MarshalMap(state)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal workflow: %w", err)
	}

	item[AttrPK] = &types.AttributeValueMemberS{Value: workflowPK(state.WorkflowID)}
	item[AttrSK] = &types.AttributeValueMemberS{Value: workflowSK()}
	item[AttrEntityType] = &types.AttributeValueMemberS{Value: EntityTypeWorkflow}
	item[AttrGSI1PK] = &types.AttributeValueMemberS{Value: workflowGSI1PK(string(state.Status))}
	item[AttrGSI1SK] = &types.AttributeValueMemberS{
		Value: workflowGSI1SK(state.CreatedAt.Format(time.RFC3339Nano)),
	}
	return item, nil
}
