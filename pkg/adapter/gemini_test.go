package adapter_test

import (
	"context"
	"os"
	"testing"

	"github.com/m-mizutani/aigis/pkg/adapter"
	"github.com/m-mizutani/aigis/pkg/model"
	"github.com/m-mizutani/gt"
)

func newGemini(t *testing.T) *adapter.GeminiClient {
	projectID := os.Getenv("TEST_GEMINI_PROJECT")
	if projectID == "" {
		t.Skip("TEST_GEMINI_PROJECT is not set")
	}

	client, err := adapter.NewGemini(context.Background(), projectID, "us-central1",
		adapter.WithEmbeddingDimension(256))
	gt.NoError(t, err)
	return client
}

func TestGeminiGenerate(t *testing.T) {
	client := newGemini(t)
	ctx := context.Background()

	resp, err := client.Generate(ctx, []model.Message{
		model.SystemMessage("Answer in one word."),
		model.UserMessage("What is the capital of France?"),
	})
	gt.NoError(t, err)
	gt.S(t, resp).Contains("Paris")
}

func TestGeminiGenerateStream(t *testing.T) {
	client := newGemini(t)
	ctx := context.Background()

	var text string
	for chunk, err := range client.GenerateStream(ctx, []model.Message{model.UserMessage("Count from 1 to 5.")}) {
		gt.NoError(t, err)
		text += chunk
	}
	gt.S(t, text).Contains("5")
}

func TestGeminiEmbed(t *testing.T) {
	client := newGemini(t)
	ctx := context.Background()

	vectors, err := client.Embed(ctx, []string{"hello", "world"})
	gt.NoError(t, err)
	gt.A(t, vectors).Length(2)
	gt.A(t, vectors[0]).Length(256)
}
