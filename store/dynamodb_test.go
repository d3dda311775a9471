package store

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianbio/pipeline"
)

// mockDynamoDBClient records calls and serves canned responses
type mockDynamoDBClient struct {
	putItems   []*dynamodb.PutItemInput
	getOutput  *dynamodb.GetItemOutput
	getErr     error
	queryInput *dynamodb.QueryInput
	queryOut   *dynamodb.QueryOutput
}

func (m *mockDynamoDBClient) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	m.putItems = append(m.putItems, params)
	return &dynamodb.PutItemOutput{}, nil
}

func (m *mockDynamoDBClient) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	if m.getOutput != nil {
		return m.getOutput, nil
	}
	return &dynamodb.GetItemOutput{}, nil
}

func (m *mockDynamoDBClient) Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	m.queryInput = params
	if m.queryOut != nil {
		return m.queryOut, nil
	}
	return &dynamodb.QueryOutput{}, nil
}

func (m *mockDynamoDBClient) DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	return &dynamodb.DeleteItemOutput{}, nil
}

func TestDynamoDBStore_SaveWritesKeys(t *testing.T) {
	mock := &mockDynamoDBClient{}
	s := NewDynamoDBStore(mock, "pipeline-table")

	state := &pipeline.WorkflowState{
		WorkflowID: "wf-1",
		Status:     pipeline.WorkflowRunning,
		Stages:     map[string]*pipeline.StageResult{},
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	require.NoError(t, s.SaveWorkflow(context.Background(), state))
	require.Len(t, mock.putItems, 1)

	item := mock.putItems[0].Item
	assert.Equal(t, "pipeline-table", *mock.putItems[0].TableName)
	assert.Equal(t, "WF#wf-1", item[AttrPK].(*types.AttributeValueMemberS).Value)
	assert.Equal(t, "SNAPSHOT", item[AttrSK].(*types.AttributeValueMemberS).Value)
	assert.Equal(t, "STATUS#RUNNING", item[AttrGSI1PK].(*types.AttributeValueMemberS).Value)
	assert.Equal(t, EntityTypeWorkflow, item[AttrEntityType].(*types.AttributeValueMemberS).Value)
}

func TestDynamoDBStore_CreateIsConditional(t *testing.T) {
	mock := &mockDynamoDBClient{}
	s := NewDynamoDBStore(mock, "pipeline-table")

	state := &pipeline.WorkflowState{
		WorkflowID: "wf-1",
		Status:     pipeline.WorkflowInitiated,
		Stages:     map[string]*pipeline.StageResult{},
		CreatedAt:  time.Now(),
	}
	require.NoError(t, s.CreateWorkflow(context.Background(), state))
	require.Len(t, mock.putItems, 1)
	require.NotNil(t, mock.putItems[0].ConditionExpression)
	assert.Contains(t, *mock.putItems[0].ConditionExpression, "attribute_not_exists")
}

func TestDynamoDBStore_GetUnknownIsNotFound(t *testing.T) {
	mock := &mockDynamoDBClient{}
	s := NewDynamoDBStore(mock, "pipeline-table")

	_, err := s.GetWorkflow(context.Background(), "absent")
	assert.ErrorIs(t, err, pipeline.ErrWorkflowNotFound)
}

func TestDynamoDBStore_ListRequiresStatus(t *testing.T) {
	mock := &mockDynamoDBClient{}
	s := NewDynamoDBStore(mock, "pipeline-table")

	_, err := s.ListWorkflows(context.Background(), pipeline.ListFilter{})
	assert.Error(t, err)
}

func TestDynamoDBStore_ListQueriesStatusIndex(t *testing.T) {
	mock := &mockDynamoDBClient{}
	s := NewDynamoDBStore(mock, "pipeline-table")

	_, err := s.ListWorkflows(context.Background(), pipeline.ListFilter{
		Status: pipeline.WorkflowCompleted,
		Limit:  5,
	})
	require.NoError(t, err)
	require.NotNil(t, mock.queryInput)

	assert.Equal(t, IndexStatusIndex, *mock.queryInput.IndexName)
	assert.Equal(t, int32(5), *mock.queryInput.Limit)
	pk := mock.queryInput.ExpressionAttributeValues[":pk"].(*types.AttributeValueMemberS)
	assert.Equal(t, "STATUS#COMPLETED", pk.Value)
}
