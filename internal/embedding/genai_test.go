package embedding

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeTaskType(t *testing.T) {
	for _, valid := range []string{
		"SEMANTIC_SIMILARITY",
		"CLASSIFICATION",
		"CLUSTERING",
		"RETRIEVAL_DOCUMENT",
		"RETRIEVAL_QUERY",
		"QUESTION_ANSWERING",
		"FACT_VERIFICATION",
	} {
		assert.Equal(t, valid, normalizeTaskType(valid))
	}

	assert.Equal(t, "SEMANTIC_SIMILARITY", normalizeTaskType(""))
	assert.Equal(t, "SEMANTIC_SIMILARITY", normalizeTaskType("semantic_similarity"))
	assert.Equal(t, "SEMANTIC_SIMILARITY", normalizeTaskType("NO_SUCH_TASK"))
}

func TestNewGenAIEngineRequiresKey(t *testing.T) {
	_, err := NewGenAIEngine("", "gemini-embedding-001", "SEMANTIC_SIMILARITY")
	assert.Error(t, err)
}
