package graph

import (
	"context"
	"testing"

	"github.com/BaSui01/policyrag/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) *QueryEngine {
	t.Helper()
	store := newTestStore(t)
	seedGraph(t, store)
	return NewQueryEngine(store, nil)
}

func TestQueryEntityRelationshipsSingleHop(t *testing.T) {
	engine := newTestEngine(t)

	relations := engine.QueryEntityRelationships(context.Background(), "华侨经济文化合作试验区", 1)
	require.Len(t, relations, 1)
	assert.Equal(t, types.PredicateManages, relations[0].Predicate)
}

func TestQueryEntityRelationshipsTwoHops(t *testing.T) {
	engine := newTestEngine(t)

	relations := engine.QueryEntityRelationships(context.Background(), "华侨经济文化合作试验区", 2)
	// 第二跳经管委会到达市政府
	require.Len(t, relations, 2)

	// 第三跳覆盖市政府发布的政策
	relations = engine.QueryEntityRelationships(context.Background(), "华侨经济文化合作试验区", 3)
	require.Len(t, relations, 3)
}

func TestQueryEntityRelationshipsClampsHops(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	// "abc" 回落默认 2 跳，与显式 2 跳结果一致
	byDefault := engine.QueryEntityRelationships(ctx, "华侨经济文化合作试验区", "abc")
	byTwo := engine.QueryEntityRelationships(ctx, "华侨经济文化合作试验区", 2)
	assert.Equal(t, len(byTwo), len(byDefault))

	// 负值截断为 1 跳
	byNegative := engine.QueryEntityRelationships(ctx, "华侨经济文化合作试验区", -5)
	byOne := engine.QueryEntityRelationships(ctx, "华侨经济文化合作试验区", 1)
	assert.Equal(t, len(byOne), len(byNegative))
}

func TestQueryEntityRelationshipsUnknownEntity(t *testing.T) {
	engine := newTestEngine(t)
	relations := engine.QueryEntityRelationships(context.Background(), "没有的实体", 2)
	assert.Empty(t, relations)
}

func TestQueryAggregation(t *testing.T) {
	engine := newTestEngine(t)

	gc := engine.Query(context.Background(), "华侨经济文化合作试验区的管理机构是什么？",
		[]string{"华侨经济文化合作试验区"}, 2)

	assert.NotEmpty(t, gc.Entities)
	assert.NotEmpty(t, gc.Policies)
	assert.NotEmpty(t, gc.Relations)
}

func TestQueryNoEntitiesFallsBackToTitleSearch(t *testing.T) {
	engine := newTestEngine(t)

	gc := engine.Query(context.Background(), "试验区总体方案的内容？", nil, 2)
	assert.Empty(t, gc.Entities)
	assert.NotEmpty(t, gc.Policies)
}

func TestQueryUnknownSignalsReturnsEmptyContext(t *testing.T) {
	engine := newTestEngine(t)

	gc := engine.Query(context.Background(), "完全无关的问题",
		[]string{"不存在的实体XYZ"}, 2)
	// 空上下文而非 nil
	assert.NotNil(t, gc.Entities)
	assert.NotNil(t, gc.Policies)
	assert.NotNil(t, gc.Relations)
}

func TestVerifyRelations(t *testing.T) {
	engine := newTestEngine(t)

	verified := engine.VerifyRelations(context.Background(), []types.Relation{
		{Source: "试验区管委会", Target: "华侨经济文化合作试验区", Predicate: types.PredicateManages},
		{Source: "试验区管委会", Target: "产业扶持政策", Predicate: types.PredicatePublishes},
	})

	assert.True(t, verified["试验区管委会|华侨经济文化合作试验区"])
	assert.False(t, verified["试验区管委会|产业扶持政策"])
}

func TestStatisticsNeverNil(t *testing.T) {
	engine := newTestEngine(t)
	stats := engine.Statistics(context.Background())
	require.NotNil(t, stats)
	assert.Equal(t, int64(4), stats.Entities)
}
