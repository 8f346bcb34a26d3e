package store

import (
	"fmt"
	"path/filepath"

	"agentvault/internal/config"
	"agentvault/internal/embedding"
	"agentvault/internal/logging"
)

// Open builds a fully wired HybridStore from configuration: logging is
// assumed initialized by the caller. On any adapter failure everything
// already opened is closed again.
func Open(cfg config.Config) (*HybridStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	engine, err := embedding.NewEngine(embedding.Config{
		Provider:       cfg.Embedding.Provider,
		Dimensions:     cfg.Embedding.Dimensions,
		OllamaEndpoint: cfg.Embedding.OllamaEndpoint,
		OllamaModel:    cfg.Embedding.OllamaModel,
		GenAIAPIKey:    cfg.Embedding.GenAIAPIKey,
		GenAIModel:     cfg.Embedding.GenAIModel,
		TaskType:       cfg.Embedding.TaskType,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding engine: %w", err)
	}

	relational, err := NewRelationalStore(cfg.Relational.Path, cfg.Relational.Workers, cfg.Relational.QueueDepth)
	if err != nil {
		return nil, fmt.Errorf("relational store: %w", err)
	}

	document, err := NewDocumentStore(cfg.Document.Dir, cfg.Document.Workers, cfg.Document.QueueDepth)
	if err != nil {
		relational.Close()
		return nil, fmt.Errorf("document store: %w", err)
	}

	var index VectorIndex
	switch cfg.Vector.Index {
	case "sqlite-vec":
		index, err = NewVecIndex(filepath.Join(cfg.Vector.Dir, "index.db"), cfg.Vector.Dimensions)
	default:
		index = NewMemoryIndex()
	}
	if err != nil {
		document.Close()
		relational.Close()
		return nil, fmt.Errorf("vector index: %w", err)
	}

	vector, err := NewVectorStore(cfg.Vector.Dir, index, cfg.Vector.MaxVectors, cfg.Vector.Workers, cfg.Vector.QueueDepth)
	if err != nil {
		index.Close()
		document.Close()
		relational.Close()
		return nil, fmt.Errorf("vector store: %w", err)
	}

	logging.Boot("Storage opened at %s (vector_index=%s)", cfg.DataDir, cfg.Vector.Index)
	return NewHybridStore(relational, document, vector, engine), nil
}
