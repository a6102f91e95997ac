// Package ingestion wraps the unified store operation with the
// pre-storage concerns a real ingestion workflow needs: skipping
// documents that haven't changed since their last ingest, defaulting a
// resource type, and reporting per-document outcomes across a batch.
package ingestion

import (
	"context"
	"time"

	"ltmc-engine/internal/consistency"
	"ltmc-engine/internal/unified"
	"ltmc-engine/pkg/types"
)

// VersionProbe lets the pipeline skip re-ingesting unchanged content.
type VersionProbe interface {
	Probe(ctx context.Context, docID string) (found bool, version types.DataVersion, err error)
}

// Document is one unit of content to ingest.
type Document struct {
	DocID         string
	ResourceType  string
	Content       string
	Tags          []string
	Relationships []types.Relationship
	Level         types.ConsistencyLevel
}

// Result reports one document's ingestion outcome.
type Result struct {
	DocID   string
	Skipped bool
	Err     error
}

// Pipeline drives the chunk -> embed -> multi-backend-store flow for
// incoming documents.
type Pipeline struct {
	ops     *unified.Operations
	version VersionProbe
}

// New builds a Pipeline. version may be nil to disable unchanged-content
// skipping.
func New(ops *unified.Operations, version VersionProbe) *Pipeline {
	return &Pipeline{ops: ops, version: version}
}

// Ingest stores one document, skipping it if its content hash already
// matches what's on record for docID.
func (p *Pipeline) Ingest(ctx context.Context, doc Document) Result {
	if p.version != nil {
		found, existing, err := p.version.Probe(ctx, doc.DocID)
		if err == nil && found {
			current := consistency.NewDataVersion(doc.DocID, doc.Content, time.Now())
			if current.ContentHash == existing.ContentHash {
				return Result{DocID: doc.DocID, Skipped: true}
			}
		}
	}

	resourceType := doc.ResourceType
	if resourceType == "" {
		resourceType = "document"
	}

	_, err := p.ops.StoreDocument(ctx, doc.DocID, resourceType, doc.Content, doc.Tags, doc.Relationships, doc.Level)
	return Result{DocID: doc.DocID, Err: err}
}

// IngestBatch ingests every document in order, continuing past
// individual failures so one bad document doesn't block the rest.
func (p *Pipeline) IngestBatch(ctx context.Context, docs []Document) []Result {
	results := make([]Result, len(docs))
	for i, doc := range docs {
		results[i] = p.Ingest(ctx, doc)
	}
	return results
}
