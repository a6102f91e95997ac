package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/qdrant/go-client/qdrant"
)

func TestPayloadStringRoundTrips(t *testing.T) {
	payload := stringMapToPayload(map[string]string{"text": "hello chunk"})
	assert.Equal(t, "hello chunk", payloadString(payload, "text"))
}

func TestPayloadStringMissingKeyReturnsEmpty(t *testing.T) {
	payload := map[string]*qdrant.Value{}
	assert.Equal(t, "", payloadString(payload, "missing"))
}

func TestPayloadInt64RoundTrips(t *testing.T) {
	payload := stringMapToPayload(map[string]string{"chunk_id": "42"})
	assert.Equal(t, int64(42), payloadInt64(payload, "chunk_id"))
}

func TestPayloadInt64MissingOrInvalidReturnsZero(t *testing.T) {
	payload := stringMapToPayload(map[string]string{"chunk_id": "not-a-number"})
	assert.Equal(t, int64(0), payloadInt64(payload, "chunk_id"))
	assert.Equal(t, int64(0), payloadInt64(payload, "missing"))
}

func TestUpsertRejectsMismatchedDimension(t *testing.T) {
	s := &Store{dimension: 384}
	err := s.Upsert(nil, 1, make([]float32, 10), nil) //nolint:staticcheck // dimension check runs before ctx use
	assert := assert.New(t)
	assert.Error(err)
}
