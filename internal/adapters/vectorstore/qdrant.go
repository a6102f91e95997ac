// Package vectorstore is the Qdrant-backed vector search adapter
// (BackendRole = vector). Points are addressed by the numeric vector ID
// the transactional store's sequence counter assigns, not by UUID.
package vectorstore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/qdrant/go-client/qdrant"

	"ltmc-engine/internal/config"
	"ltmc-engine/internal/errors"
	"ltmc-engine/internal/logging"
	"ltmc-engine/pkg/types"
)

// Store implements vector storage and similarity search against Qdrant.
type Store struct {
	client         *qdrant.Client
	collectionName string
	dimension      int
}

// Open connects to Qdrant and ensures the configured collection exists
// with a cosine-distance vector index of the configured dimension.
func Open(ctx context.Context, cfg *config.VectorConfig) (*Store, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:                   cfg.Host,
		Port:                   cfg.Port,
		APIKey:                 cfg.APIKey,
		UseTLS:                 cfg.UseTLS,
		SkipCompatibilityCheck: true,
	})
	if err != nil {
		return nil, errors.New(errors.KindUnavailable, "vectorstore", "Open", err)
	}

	s := &Store{client: client, collectionName: cfg.CollectionName, dimension: cfg.Dimension}
	if err := s.ensureCollection(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureCollection(ctx context.Context) error {
	collections, err := s.client.ListCollections(ctx)
	if err != nil {
		return errors.New(errors.KindUnavailable, "vectorstore", "ListCollections", err)
	}

	for _, name := range collections {
		if name == s.collectionName {
			return nil
		}
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collectionName,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(s.dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return errors.New(errors.KindInternal, "vectorstore", "CreateCollection", err)
	}
	logging.Info("created qdrant collection", "collection", s.collectionName)
	return nil
}

// Upsert stores a chunk's embedding, keyed by its numeric vector ID.
func (s *Store) Upsert(ctx context.Context, vectorID int64, values []float32, payload map[string]string) error {
	if len(values) != s.dimension {
		return errors.New(errors.KindValidation, "vectorstore", "Upsert",
			fmt.Errorf("embedding dimension %d does not match collection dimension %d", len(values), s.dimension))
	}

	point := &qdrant.PointStruct{
		Id:      qdrant.NewIDNum(uint64(vectorID)),
		Vectors: qdrant.NewVectors(values...),
		Payload: stringMapToPayload(payload),
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collectionName,
		Points:         []*qdrant.PointStruct{point},
	})
	if err != nil {
		return errors.New(errors.KindInternal, "vectorstore", "Upsert", err)
	}
	return nil
}

// Search performs a top-k similarity search against a query embedding.
func (s *Store) Search(ctx context.Context, query []float32, limit int) ([]types.SearchResult, error) {
	start := time.Now()

	result, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collectionName,
		Query:          qdrant.NewQuery(query...),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, errors.New(errors.KindUnavailable, "vectorstore", "Search", err)
	}

	results := make([]types.SearchResult, 0, len(result))
	for _, point := range result {
		payload := point.GetPayload()
		results = append(results, types.SearchResult{
			Chunk: types.Chunk{
				ID:         payloadInt64(payload, "chunk_id"),
				ResourceID: payloadInt64(payload, "resource_id"),
				VectorID:   int64(point.GetId().GetNum()),
				Text:       payloadString(payload, "text"),
			},
			Score: float64(point.GetScore()),
		})
	}

	logging.Debug("vector search completed", "results", len(results), "duration_ms", time.Since(start).Milliseconds())
	return results, nil
}

// Delete removes a point by its numeric vector ID.
func (s *Store) Delete(ctx context.Context, vectorID int64) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collectionName,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{
				Points: &qdrant.PointsIdsList{Ids: []*qdrant.PointId{qdrant.NewIDNum(uint64(vectorID))}},
			},
		},
	})
	if err != nil {
		return errors.New(errors.KindInternal, "vectorstore", "Delete", err)
	}
	return nil
}

// HealthCheck verifies the collection is reachable.
func (s *Store) HealthCheck(ctx context.Context) error {
	if _, err := s.client.GetCollectionInfo(ctx, s.collectionName); err != nil {
		return errors.New(errors.KindUnavailable, "vectorstore", "HealthCheck", err)
	}
	return nil
}

func stringMapToPayload(m map[string]string) map[string]*qdrant.Value {
	payload := make(map[string]*qdrant.Value, len(m))
	for k, v := range m {
		payload[k] = qdrant.NewValueString(v)
	}
	return payload
}

func payloadString(payload map[string]*qdrant.Value, key string) string {
	if v, ok := payload[key]; ok {
		return v.GetStringValue()
	}
	return ""
}

func payloadInt64(payload map[string]*qdrant.Value, key string) int64 {
	v, ok := payload[key]
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(v.GetStringValue(), 10, 64)
	if err != nil {
		return 0
	}
	return n
}
