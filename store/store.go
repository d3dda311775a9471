// Package store provides pipeline.StateStore implementations: an
// in-memory store for tests and single-process use, and a DynamoDB
// single-table store for durable deployments.
package store
