//go:build integration

package openai

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntegration_GenerateEmbedding_RealAPI(t *testing.T) {
	client, err := NewClientFromEnv()
	if err != nil {
		t.Skip("OPENAI_API_KEY not set, skipping integration test")
	}

	embedding, err := client.GenerateEmbedding(context.Background(), "FHIR Observation resources capture measurements.")

	require.NoError(t, err)
	assert.Len(t, embedding, DefaultEmbeddingDimensions)
}

func TestIntegration_Complete_RealAPI(t *testing.T) {
	if os.Getenv("OPENAI_API_KEY") == "" {
		t.Skip("OPENAI_API_KEY not set, skipping integration test")
	}
	client := NewClient(os.Getenv("OPENAI_API_KEY"))

	text, tokens, err := client.Complete(context.Background(), "Answer in one word.", "What does the F in FHIR stand for?", 0.3, 20)

	require.NoError(t, err)
	assert.NotEmpty(t, text)
	assert.Greater(t, tokens, 0)
}
