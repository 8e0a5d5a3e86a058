package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  GraphRAG  Engine ", "graphrag engine"},
		{"华侨经济文化合作试验区", "华侨经济文化合作试验区"},
		{"A\t B\nC", "a b c"},
		{"", ""},
		{"   ", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeName(tt.in))
	}
}

func TestParseEntityKind(t *testing.T) {
	assert.Equal(t, EntityOrg, ParseEntityKind("organization"))
	assert.Equal(t, EntityOrg, ParseEntityKind("机构"))
	assert.Equal(t, EntityRegulation, ParseEntityKind("政策"))
	assert.Equal(t, EntityPerson, ParseEntityKind(" Person "))
	assert.Equal(t, EntityOther, ParseEntityKind("galaxy"))
	assert.Equal(t, EntityOther, ParseEntityKind(""))
}

func TestMergeEntities(t *testing.T) {
	in := []Entity{
		{Name: "汕头市政府", Kind: EntityOrg, Confidence: 0.6},
		{Name: "汕头市政府 ", Kind: EntityOther, Confidence: 0.9},
		{Name: "试验区管委会", Kind: EntityOrg, Confidence: 0.7},
	}
	out := MergeEntities(in)
	require.Len(t, out, 2)

	assert.Equal(t, "汕头市政府", out[0].Name)
	assert.Equal(t, EntityOrg, out[0].Kind)
	assert.InDelta(t, 0.9, out[0].Confidence, 1e-9)

	assert.Equal(t, "试验区管委会", out[1].Name)
}

func TestMergeEntitiesKeepsFirstSeenOrder(t *testing.T) {
	in := []Entity{
		{Name: "b", Kind: EntityConcept, Confidence: 0.5},
		{Name: "a", Kind: EntityConcept, Confidence: 0.5},
		{Name: "B", Kind: EntityConcept, Confidence: 0.8},
	}
	out := MergeEntities(in)
	require.Len(t, out, 2)
	assert.Equal(t, "b", out[0].Name)
	assert.Equal(t, "a", out[1].Name)
}

func TestMergeEntitiesUnionsAliases(t *testing.T) {
	in := []Entity{
		{Name: "华侨试验区", Kind: EntityLocation, Confidence: 0.8, Aliases: []string{"试验区"}},
		{Name: "华侨试验区", Kind: EntityLocation, Confidence: 0.6, Aliases: []string{"华侨经济文化合作试验区", "试验区"}},
	}
	out := MergeEntities(in)
	require.Len(t, out, 1)
	assert.ElementsMatch(t, []string{"试验区", "华侨经济文化合作试验区"}, out[0].Aliases)
}

func TestMergeEntitiesDropsEmptyNames(t *testing.T) {
	out := MergeEntities([]Entity{{Name: "   "}, {Name: ""}})
	assert.Empty(t, out)
}
