package store

import "fmt"

// DynamoDB schema constants for single-table design
const (
	// Table attributes
	AttrPK         = "PK"
	AttrSK         = "SK"
	AttrGSI1PK     = "GSI1PK"
	AttrGSI1SK     = "GSI1SK"
	AttrEntityType = "entity_type"
	AttrTTL        = "ttl"

	// Entity types
	EntityTypeWorkflow = "Workflow"

	// Index names
	IndexStatusIndex = "GSI1"
)

// Workflow snapshot keys: PK=WF#{workflowID}, SK=SNAPSHOT
func workflowPK(workflowID string) string {
	return fmt.Sprintf("WF#%s", workflowID)
}

func workflowSK() string {
	return "SNAPSHOT"
}

// GSI1 partitions workflows by status, ordered by creation time
func workflowGSI1PK(status string) string {
	return fmt.Sprintf("STATUS#%s", status)
}

func workflowGSI1SK(createdAt string) string {
	return createdAt
}
