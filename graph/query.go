package graph

import (
	"context"

	"github.com/BaSui01/policyrag/types"
	"go.uber.org/zap"
)

// QueryEngine 在 Store 之上提供面向问答的图谱查询。
// 任何一步查询失败都收敛为空上下文，不向主链路传播错误。
type QueryEngine struct {
	store  *Store
	logger *zap.Logger
}

// NewQueryEngine 创建查询引擎，logger 为 nil 时使用 Nop。
func NewQueryEngine(store *Store, logger *zap.Logger) *QueryEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueryEngine{
		store:  store,
		logger: logger.With(zap.String("component", "graph_query")),
	}
}

// QueryEntitiesByName 按名称查实体（精确优先、子串补齐）。
func (q *QueryEngine) QueryEntitiesByName(ctx context.Context, names []string) []types.Entity {
	records, err := q.store.FindEntitiesByNames(ctx, names)
	if err != nil {
		q.logger.Warn("实体查询失败", zap.Error(err))
		return []types.Entity{}
	}
	entities := make([]types.Entity, 0, len(records))
	for _, r := range records {
		entities = append(entities, r.Entity())
	}
	return entities
}

// QueryPoliciesByEntities 查与实体关联的政策。
func (q *QueryEngine) QueryPoliciesByEntities(ctx context.Context, names []string) []types.PolicyRef {
	policies, err := q.store.FindPoliciesByEntities(ctx, names)
	if err != nil {
		q.logger.Warn("政策查询失败", zap.Error(err))
		return []types.PolicyRef{}
	}
	return policies
}

// QueryEntityRelationships 以实体为起点做有界 BFS，返回途经的所有关系。
// maxHops 接受任意类型，由 NormalizeMaxHops 收敛到 [1,10]。
func (q *QueryEngine) QueryEntityRelationships(ctx context.Context, entity string, maxHops any) []types.Relation {
	hops := NormalizeMaxHops(maxHops)
	start := types.NormalizeName(entity)
	if start == "" {
		return []types.Relation{}
	}

	visited := map[string]struct{}{start: {}}
	seenRelations := map[uint]struct{}{}
	frontier := []string{start}
	var relations []types.Relation

	for hop := 0; hop < hops && len(frontier) > 0; hop++ {
		records, err := q.store.RelationsTouching(ctx, frontier)
		if err != nil {
			q.logger.Warn("关系遍历失败",
				zap.String("entity", entity),
				zap.Int("hop", hop),
				zap.Error(err),
			)
			return relations
		}

		var next []string
		for _, r := range records {
			if _, ok := seenRelations[r.ID]; ok {
				continue
			}
			seenRelations[r.ID] = struct{}{}
			relations = append(relations, r.Relation())

			for _, endpoint := range []string{r.Source, r.Target} {
				if _, ok := visited[endpoint]; !ok {
					visited[endpoint] = struct{}{}
					next = append(next, endpoint)
				}
			}
		}
		frontier = next
	}
	return relations
}

// SearchSimilarPolicies 标题子串兜底检索。
func (q *QueryEngine) SearchSimilarPolicies(ctx context.Context, text string) []types.PolicyRef {
	policies, err := q.store.SearchPoliciesByText(ctx, text, 5)
	if err != nil {
		q.logger.Warn("政策兜底检索失败", zap.Error(err))
		return []types.PolicyRef{}
	}
	return policies
}

// VerifyRelations 核对实体对之间是否存在图谱关系，
// 返回 "source|target" 到存在性的映射，供幻觉检测使用。
func (q *QueryEngine) VerifyRelations(ctx context.Context, pairs []types.Relation) map[string]bool {
	verified := make(map[string]bool, len(pairs))
	for _, p := range pairs {
		key := types.NormalizeName(p.Source) + "|" + types.NormalizeName(p.Target)
		exists, err := q.store.RelationExists(ctx, p.Source, p.Target, p.Predicate)
		if err != nil {
			q.logger.Warn("关系核对失败", zap.Error(err))
			exists = false
		}
		verified[key] = exists
	}
	return verified
}

// Statistics 返回图谱统计。
func (q *QueryEngine) Statistics(ctx context.Context) *Statistics {
	stats, err := q.store.Stats(ctx)
	if err != nil {
		q.logger.Warn("图谱统计失败", zap.Error(err))
		return &Statistics{}
	}
	return stats
}

// Query 是问答链路的聚合入口：按问题实体查实体、政策与多跳关系。
// 没有任何实体信号时退化为标题兜底检索；失败时返回空上下文。
func (q *QueryEngine) Query(ctx context.Context, question string, entityNames []string, maxHops any) types.GraphContext {
	gc := types.EmptyGraphContext()

	if len(entityNames) == 0 {
		gc.Policies = q.SearchSimilarPolicies(ctx, question)
		return gc
	}

	gc.Entities = q.QueryEntitiesByName(ctx, entityNames)
	gc.Policies = q.QueryPoliciesByEntities(ctx, entityNames)

	for _, e := range gc.Entities {
		gc.Relations = append(gc.Relations, q.QueryEntityRelationships(ctx, e.Name, maxHops)...)
	}
	gc.Relations = dedupeRelations(gc.Relations)

	if gc.Empty() {
		gc.Policies = q.SearchSimilarPolicies(ctx, question)
	}
	return gc
}

func dedupeRelations(relations []types.Relation) []types.Relation {
	seen := make(map[string]struct{}, len(relations))
	out := relations[:0]
	for _, r := range relations {
		key := types.NormalizeName(r.Source) + "|" + string(r.Predicate) + "|" + types.NormalizeName(r.Target)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}
	if out == nil {
		return []types.Relation{}
	}
	return out
}
