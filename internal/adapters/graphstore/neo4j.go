// Package graphstore is the Neo4j-backed relationship adapter
// (BackendRole = graph). Documents are (:Document {id}) nodes; edges are
// typed relationships named after types.RelationshipType values.
package graphstore

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"ltmc-engine/internal/config"
	"ltmc-engine/internal/errors"
	"ltmc-engine/pkg/types"
)

// Store wraps a Neo4j driver for document-relationship storage and traversal.
type Store struct {
	driver neo4j.DriverWithContext
}

// Open connects to Neo4j and verifies connectivity.
func Open(ctx context.Context, cfg *config.GraphConfig) (*Store, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, errors.New(errors.KindUnavailable, "graphstore", "Open", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, errors.New(errors.KindUnavailable, "graphstore", "Open", err)
	}
	return &Store{driver: driver}, nil
}

// Close releases the Neo4j driver.
func (s *Store) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

func (s *Store) writeSession(ctx context.Context) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
}

func (s *Store) readSession(ctx context.Context) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
}

// UpsertDocument ensures a (:Document {id}) node exists.
func (s *Store) UpsertDocument(ctx context.Context, docID string) error {
	session := s.writeSession(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, `MERGE (d:Document {id: $id})`, map[string]any{"id": docID})
		return nil, err
	})
	if err != nil {
		return errors.New(errors.KindInternal, "graphstore", "UpsertDocument", err)
	}
	return nil
}

// StoreRelationship creates (or refreshes) a typed edge between two documents.
func (s *Store) StoreRelationship(ctx context.Context, rel *types.Relationship) error {
	session := s.writeSession(ctx)
	defer session.Close(ctx)

	query := fmt.Sprintf(`
		MERGE (a:Document {id: $fromId})
		MERGE (b:Document {id: $toId})
		MERGE (a)-[r:%s]->(b)
		SET r.created_at = $createdAt
	`, string(rel.Type))

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, query, map[string]any{
			"fromId":    rel.FromID,
			"toId":      rel.ToID,
			"createdAt": rel.CreatedAt.Unix(),
		})
		return nil, err
	})
	if err != nil {
		return errors.New(errors.KindInternal, "graphstore", "StoreRelationship", err)
	}
	return nil
}

// Related returns the IDs of documents directly related to docID via the
// given relationship type, in the forward (outgoing) direction.
func (s *Store) Related(ctx context.Context, docID string, relType types.RelationshipType) ([]string, error) {
	session := s.readSession(ctx)
	defer session.Close(ctx)

	query := fmt.Sprintf(`
		MATCH (a:Document {id: $id})-[:%s]->(b:Document)
		RETURN b.id AS id
	`, string(relType))

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, map[string]any{"id": docID})
		if err != nil {
			return nil, err
		}
		var ids []string
		for res.Next(ctx) {
			if v, ok := res.Record().Get("id"); ok {
				ids = append(ids, v.(string))
			}
		}
		return ids, res.Err()
	})
	if err != nil {
		return nil, errors.New(errors.KindInternal, "graphstore", "Related", err)
	}
	return result.([]string), nil
}

// ThoughtChain traverses FOLLOWS edges outward from a chain's head
// thought (its most recent step) toward older ancestors, returning the
// thought IDs it passes through newest-first. FOLLOWS points from each
// thought to its predecessor, so the traversal direction here walks
// backward through the chain; the caller reverses the result for
// chronological order.
func (s *Store) ThoughtChain(ctx context.Context, headThoughtID string) ([]string, error) {
	session := s.readSession(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := `
			MATCH path = (head:Document {id: $id})-[:FOLLOWS*0..]->(t:Document)
			RETURN [n in nodes(path) | n.id] AS chain
			ORDER BY length(path) DESC
			LIMIT 1
		`
		res, err := tx.Run(ctx, query, map[string]any{"id": headThoughtID})
		if err != nil {
			return nil, err
		}
		if res.Next(ctx) {
			if v, ok := res.Record().Get("chain"); ok {
				raw := v.([]any)
				chain := make([]string, len(raw))
				for i, e := range raw {
					chain[i] = e.(string)
				}
				return chain, nil
			}
		}
		return []string{headThoughtID}, res.Err()
	})
	if err != nil {
		return nil, errors.New(errors.KindInternal, "graphstore", "ThoughtChain", err)
	}
	return result.([]string), nil
}

// DeleteDocument detaches and deletes a document node and its edges.
func (s *Store) DeleteDocument(ctx context.Context, docID string) error {
	session := s.writeSession(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, `MATCH (d:Document {id: $id}) DETACH DELETE d`, map[string]any{"id": docID})
		return nil, err
	})
	if err != nil {
		return errors.New(errors.KindInternal, "graphstore", "DeleteDocument", err)
	}
	return nil
}

// HealthCheck verifies Neo4j connectivity.
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.driver.VerifyConnectivity(ctx); err != nil {
		return errors.New(errors.KindUnavailable, "graphstore", "HealthCheck", err)
	}
	return nil
}
