// 软件包 graph 提供政策知识图谱的关系型存储与查询引擎.
//
// 实体、关系与政策落在四张表上（entities/relations/policies/policy_entities），
// 多跳遍历在 Go 侧以 BFS 实现，每一跳只发一条按端点过滤的查询。
// 所有查询失败都退化为空结果，图谱信号的缺失不会中断问答主链路。
package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/BaSui01/policyrag/types"
	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// StoreConfig 图谱存储配置
type StoreConfig struct {
	// 驱动类型: postgres, mysql, sqlite
	Driver string
	// 连接字符串
	DSN string
	// 实体查询返回上限
	EntityLimit int
}

// DefaultStoreConfig 返回默认存储配置
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Driver:      "sqlite",
		DSN:         "policyrag.db",
		EntityLimit: 20,
	}
}

// Store 知识图谱存储
type Store struct {
	db     *gorm.DB
	cfg    StoreConfig
	logger *zap.Logger
}

// Open 按配置打开数据库并创建存储。
func Open(cfg StoreConfig, logger *zap.Logger) (*Store, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported graph driver: %s (supported: postgres, mysql, sqlite)", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect graph database: %w", err)
	}
	return NewStore(db, cfg, logger), nil
}

// NewStore 在已有 gorm.DB 上创建存储（测试用 glebarez 内存 sqlite 走这里）。
func NewStore(db *gorm.DB, cfg StoreConfig, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.EntityLimit <= 0 {
		cfg.EntityLimit = 20
	}
	return &Store{
		db:     db,
		cfg:    cfg,
		logger: logger.With(zap.String("component", "graph_store")),
	}
}

// AutoMigrate 建表。本地 sqlite 模式与测试使用；生产库的变更由外部迁移管理。
func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(
		&EntityRecord{},
		&RelationRecord{},
		&PolicyRecord{},
		&PolicyEntityRecord{},
	)
}

// UpsertEntities 按规范名写入实体，已存在时取更高置信度并合并别名。
func (s *Store) UpsertEntities(ctx context.Context, entities []types.Entity) error {
	for _, e := range entities {
		name := e.NormalizedName()
		if name == "" {
			continue
		}

		var existing EntityRecord
		err := s.db.WithContext(ctx).Where("name = ?", name).First(&existing).Error
		switch {
		case err == nil:
			merged := types.MergeEntities([]types.Entity{existing.Entity(), e})
			if len(merged) == 0 {
				continue
			}
			updated := merged[0]
			aliases, _ := json.Marshal(updated.Aliases)
			existing.Kind = string(updated.Kind)
			existing.Confidence = updated.Confidence
			existing.Aliases = string(aliases)
			if err := s.db.WithContext(ctx).Save(&existing).Error; err != nil {
				return types.NewError(types.ErrGraphQuery, "entity upsert failed").WithCause(err)
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			aliases, _ := json.Marshal(e.Aliases)
			record := EntityRecord{
				Name:        name,
				DisplayName: e.Name,
				Kind:        string(e.Kind),
				Confidence:  e.Confidence,
				Aliases:     string(aliases),
			}
			if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
				return types.NewError(types.ErrGraphQuery, "entity insert failed").WithCause(err)
			}
		default:
			return types.NewError(types.ErrGraphQuery, "entity lookup failed").WithCause(err)
		}
	}
	return nil
}

// AddRelations 写入关系，丢弃无效关系。
func (s *Store) AddRelations(ctx context.Context, relations []types.Relation) error {
	for _, r := range relations {
		if !r.Valid() {
			continue
		}
		record := RelationRecord{
			Source:     types.NormalizeName(r.Source),
			Target:     types.NormalizeName(r.Target),
			Predicate:  string(r.Predicate),
			Confidence: r.Confidence,
			Evidence:   r.Evidence,
		}
		if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
			return types.NewError(types.ErrGraphQuery, "relation insert failed").WithCause(err)
		}
	}
	return nil
}

// AddPolicy 写入政策及其关联实体。
func (s *Store) AddPolicy(ctx context.Context, policy types.PolicyRef) error {
	sections, _ := json.Marshal(policy.Sections)
	record := PolicyRecord{
		Title:          policy.Title,
		DocumentNumber: policy.DocumentNumber,
		IssuingAgency:  policy.IssuingAgency,
		PublishDate:    policy.PublishDate,
		Sections:       string(sections),
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return types.NewError(types.ErrGraphQuery, "policy insert failed").WithCause(err)
	}

	for _, entity := range policy.RelatedEntities {
		name := types.NormalizeName(entity)
		if name == "" {
			continue
		}
		link := PolicyEntityRecord{PolicyID: record.ID, EntityName: name}
		if err := s.db.WithContext(ctx).Create(&link).Error; err != nil {
			return types.NewError(types.ErrGraphQuery, "policy link insert failed").WithCause(err)
		}
	}
	return nil
}

// FindEntitiesByNames 精确匹配优先，不足时做子串匹配补齐，总量受 EntityLimit 约束。
func (s *Store) FindEntitiesByNames(ctx context.Context, names []string) ([]EntityRecord, error) {
	normalized := normalizeAll(names)
	if len(normalized) == 0 {
		return []EntityRecord{}, nil
	}

	var exact []EntityRecord
	if err := s.db.WithContext(ctx).
		Where("name IN ?", normalized).
		Limit(s.cfg.EntityLimit).
		Find(&exact).Error; err != nil {
		return nil, types.NewError(types.ErrGraphQuery, "entity query failed").WithCause(err)
	}

	seen := make(map[string]struct{}, len(exact))
	for _, r := range exact {
		seen[r.Name] = struct{}{}
	}

	remaining := s.cfg.EntityLimit - len(exact)
	if remaining <= 0 {
		return exact, nil
	}

	for _, name := range normalized {
		var fuzzy []EntityRecord
		if err := s.db.WithContext(ctx).
			Where("name LIKE ?", "%"+name+"%").
			Limit(remaining).
			Find(&fuzzy).Error; err != nil {
			return nil, types.NewError(types.ErrGraphQuery, "entity fuzzy query failed").WithCause(err)
		}
		for _, r := range fuzzy {
			if _, ok := seen[r.Name]; ok {
				continue
			}
			seen[r.Name] = struct{}{}
			exact = append(exact, r)
			remaining--
			if remaining == 0 {
				return exact, nil
			}
		}
	}
	return exact, nil
}

// FindPoliciesByEntities 返回与任一实体关联的政策。
func (s *Store) FindPoliciesByEntities(ctx context.Context, names []string) ([]types.PolicyRef, error) {
	normalized := normalizeAll(names)
	if len(normalized) == 0 {
		return []types.PolicyRef{}, nil
	}

	var links []PolicyEntityRecord
	if err := s.db.WithContext(ctx).
		Where("entity_name IN ?", normalized).
		Find(&links).Error; err != nil {
		return nil, types.NewError(types.ErrGraphQuery, "policy link query failed").WithCause(err)
	}
	if len(links) == 0 {
		return []types.PolicyRef{}, nil
	}

	policyIDs := make([]uint, 0, len(links))
	related := make(map[uint][]string)
	for _, l := range links {
		if _, ok := related[l.PolicyID]; !ok {
			policyIDs = append(policyIDs, l.PolicyID)
		}
		related[l.PolicyID] = append(related[l.PolicyID], l.EntityName)
	}

	var records []PolicyRecord
	if err := s.db.WithContext(ctx).
		Where("id IN ?", policyIDs).
		Find(&records).Error; err != nil {
		return nil, types.NewError(types.ErrGraphQuery, "policy query failed").WithCause(err)
	}

	policies := make([]types.PolicyRef, 0, len(records))
	for _, r := range records {
		policies = append(policies, r.PolicyRef(related[r.ID]))
	}
	return policies, nil
}

// SearchPoliciesByText 标题子串检索，作为没有实体信号时的兜底。
func (s *Store) SearchPoliciesByText(ctx context.Context, text string, limit int) ([]types.PolicyRef, error) {
	if limit <= 0 {
		limit = 5
	}
	var records []PolicyRecord
	if err := s.db.WithContext(ctx).
		Where("title LIKE ?", "%"+text+"%").
		Limit(limit).
		Find(&records).Error; err != nil {
		return nil, types.NewError(types.ErrGraphQuery, "policy text search failed").WithCause(err)
	}

	policies := make([]types.PolicyRef, 0, len(records))
	for _, r := range records {
		policies = append(policies, r.PolicyRef(nil))
	}
	return policies, nil
}

// RelationsTouching 返回任一端点落在给定规范名集合中的关系。
func (s *Store) RelationsTouching(ctx context.Context, names []string) ([]RelationRecord, error) {
	if len(names) == 0 {
		return []RelationRecord{}, nil
	}
	var records []RelationRecord
	if err := s.db.WithContext(ctx).
		Where("source IN ? OR target IN ?", names, names).
		Find(&records).Error; err != nil {
		return nil, types.NewError(types.ErrGraphQuery, "relation query failed").WithCause(err)
	}
	return records, nil
}

// RelationExists 判断两实体间是否存在指定谓词的关系（无谓词时匹配任意谓词）。
func (s *Store) RelationExists(ctx context.Context, source, target string, predicate types.RelationPredicate) (bool, error) {
	src := types.NormalizeName(source)
	dst := types.NormalizeName(target)

	query := s.db.WithContext(ctx).Model(&RelationRecord{}).
		Where("(source = ? AND target = ?) OR (source = ? AND target = ?)", src, dst, dst, src)
	if predicate != "" {
		query = query.Where("predicate = ?", string(predicate))
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false, types.NewError(types.ErrGraphQuery, "relation existence check failed").WithCause(err)
	}
	return count > 0, nil
}

// Statistics 图谱统计信息
type Statistics struct {
	Entities  int64 `json:"entities"`
	Relations int64 `json:"relations"`
	Policies  int64 `json:"policies"`
}

// Stats 返回节点、边与政策的数量。
func (s *Store) Stats(ctx context.Context) (*Statistics, error) {
	var stats Statistics
	if err := s.db.WithContext(ctx).Model(&EntityRecord{}).Count(&stats.Entities).Error; err != nil {
		return nil, types.NewError(types.ErrGraphQuery, "entity count failed").WithCause(err)
	}
	if err := s.db.WithContext(ctx).Model(&RelationRecord{}).Count(&stats.Relations).Error; err != nil {
		return nil, types.NewError(types.ErrGraphQuery, "relation count failed").WithCause(err)
	}
	if err := s.db.WithContext(ctx).Model(&PolicyRecord{}).Count(&stats.Policies).Error; err != nil {
		return nil, types.NewError(types.ErrGraphQuery, "policy count failed").WithCause(err)
	}
	return &stats, nil
}

func normalizeAll(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if norm := types.NormalizeName(n); norm != "" {
			out = append(out, norm)
		}
	}
	return out
}
