package memory

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	uri, err := store.PutObject(context.Background(), "reports/run.json", "application/json", bytes.NewBufferString("content"))
	require.NoError(t, err)
	assert.Equal(t, "memory://reports/run.json", uri)

	got, ok := store.Object("reports/run.json")
	require.True(t, ok)
	got[0] = 'C'
	again, _ := store.Object("reports/run.json")
	assert.Equal(t, "content", string(again))

	_, ok = store.Object("missing")
	assert.False(t, ok)
}
