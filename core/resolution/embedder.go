package resolution

import (
	"fmt"

	"github.com/knights-analytics/hugot"
	"github.com/siherrmann/facter/helper"
)

// EmbedFunc produces a fixed-width embedding for an entity name.
type EmbedFunc func(text string) ([]float32, error)

// DefaultEmbedder creates a name embedder backed by a sentence transformer
// model. Uses all-MiniLM-L6-v2 which produces 384-dimensional embeddings,
// matching the default embedding dimension of the entidades table.
func DefaultEmbedder() (EmbedFunc, error) {
	modelName := "sentence-transformers/all-MiniLM-L6-v2"
	modelPath, err := helper.PrepareModel(modelName, "onnx/model.onnx")
	if err != nil {
		return nil, err
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create hugot session: %w", err)
	}

	config := hugot.FeatureExtractionConfig{
		ModelPath: modelPath,
		Name:      "name-embedder-pipeline",
	}
	namePipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, fmt.Errorf("failed to create name pipeline: %w (cleanup error: %v)", err, destroyErr)
		}
		return nil, fmt.Errorf("failed to create name pipeline: %w", err)
	}

	return func(text string) ([]float32, error) {
		result, err := namePipeline.RunPipeline([]string{text})
		if err != nil {
			return nil, fmt.Errorf("failed to generate embedding: %w", err)
		}

		if len(result.Embeddings) == 0 {
			return nil, fmt.Errorf("no embedding generated")
		}

		return result.Embeddings[0], nil
	}, nil
}
