package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChunk_Visible(t *testing.T) {
	doc := Doc{ID: "d1"}
	chunk := Chunk{ID: "c1", DocID: "d1"}

	assert.True(t, chunk.Visible(doc))

	doc.Deleted = true
	assert.False(t, chunk.Visible(doc))

	doc.Deleted = false
	chunk.Deleted = true
	assert.False(t, chunk.Visible(doc))
}

func TestConsistencyReport_Clean(t *testing.T) {
	assert.True(t, ConsistencyReport{}.Clean())

	dirty := ConsistencyReport{MissingFromVector: []string{"c1"}}
	assert.False(t, dirty.Clean())
}
