package graph

import (
	"encoding/json"
	"time"

	"github.com/BaSui01/policyrag/types"
)

// EntityRecord 实体表。Name 存规范名，DisplayName 保留原始表面形式。
type EntityRecord struct {
	ID          uint   `gorm:"primaryKey"`
	Name        string `gorm:"uniqueIndex;size:255"`
	DisplayName string `gorm:"size:255"`
	Kind        string `gorm:"size:32;index"`
	Confidence  float64
	Aliases     string `gorm:"type:text"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TableName 指定表名
func (EntityRecord) TableName() string { return "entities" }

// Entity 还原为领域实体。
func (r EntityRecord) Entity() types.Entity {
	var aliases []string
	if r.Aliases != "" {
		_ = json.Unmarshal([]byte(r.Aliases), &aliases)
	}
	return types.Entity{
		Name:       r.DisplayName,
		Kind:       types.EntityKind(r.Kind),
		Confidence: r.Confidence,
		Aliases:    aliases,
	}
}

// RelationRecord 关系表。端点存规范名。
type RelationRecord struct {
	ID         uint   `gorm:"primaryKey"`
	Source     string `gorm:"size:255;index:idx_relations_source"`
	Target     string `gorm:"size:255;index:idx_relations_target"`
	Predicate  string `gorm:"size:64;index"`
	Confidence float64
	Evidence   string `gorm:"type:text"`
	CreatedAt  time.Time
}

// TableName 指定表名
func (RelationRecord) TableName() string { return "relations" }

// Relation 还原为领域关系。
func (r RelationRecord) Relation() types.Relation {
	return types.Relation{
		Source:     r.Source,
		Target:     r.Target,
		Predicate:  types.RelationPredicate(r.Predicate),
		Confidence: r.Confidence,
		Evidence:   r.Evidence,
	}
}

// PolicyRecord 政策表。
type PolicyRecord struct {
	ID             uint   `gorm:"primaryKey"`
	Title          string `gorm:"size:512;index"`
	DocumentNumber string `gorm:"size:128"`
	IssuingAgency  string `gorm:"size:255"`
	PublishDate    string `gorm:"size:32"`
	Sections       string `gorm:"type:text"`
	CreatedAt      time.Time
}

// TableName 指定表名
func (PolicyRecord) TableName() string { return "policies" }

// PolicyRef 还原为领域政策引用。
func (r PolicyRecord) PolicyRef(relatedEntities []string) types.PolicyRef {
	var sections []string
	if r.Sections != "" {
		_ = json.Unmarshal([]byte(r.Sections), &sections)
	}
	return types.PolicyRef{
		Title:           r.Title,
		DocumentNumber:  r.DocumentNumber,
		IssuingAgency:   r.IssuingAgency,
		PublishDate:     r.PublishDate,
		Sections:        sections,
		RelatedEntities: relatedEntities,
	}
}

// PolicyEntityRecord 政策-实体关联表。EntityName 存规范名。
type PolicyEntityRecord struct {
	ID         uint   `gorm:"primaryKey"`
	PolicyID   uint   `gorm:"index:idx_policy_entities_policy"`
	EntityName string `gorm:"size:255;index:idx_policy_entities_entity"`
}

// TableName 指定表名
func (PolicyEntityRecord) TableName() string { return "policy_entities" }
