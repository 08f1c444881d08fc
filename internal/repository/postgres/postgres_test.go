package postgres

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSchema_Dimension(t *testing.T) {
	ddl := Schema(768)

	assert.Contains(t, ddl, "embedding        vector(768)")
	assert.NotContains(t, ddl, "{{DIMENSION}}")
	assert.Contains(t, ddl, "ON DELETE CASCADE")
	assert.Contains(t, ddl, "project_id          BIGINT NOT NULL UNIQUE")
	assert.Equal(t, 2, strings.Count(ddl, "ON DELETE CASCADE"))
}

func TestLexicalQuery(t *testing.T) {
	assert.Equal(t, "road or drainage or ward", lexicalQuery([]string{"road", "drainage", "ward"}))
	assert.Equal(t, "", lexicalQuery(nil))
}

func TestVectorParam(t *testing.T) {
	assert.Nil(t, vectorParam(nil))
	assert.NotNil(t, vectorParam([]float32{0.1, 0.2}))
}

func TestHybridSearchSQL(t *testing.T) {
	assert.Contains(t, hybridSearchSQL, "ORDER BY score DESC, chunk_index ASC")
	assert.Contains(t, hybridSearchSQL, "websearch_to_tsquery")
	assert.Contains(t, hybridSearchSQL, "32)")
}
