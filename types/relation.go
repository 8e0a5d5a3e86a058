package types

import (
	"strings"
	"sync"
)

// RelationPredicate 是关系谓词。内置词表来自政策法规领域，
// 未收录的谓词可通过 RegisterPredicate 注册。
type RelationPredicate string

const (
	PredicatePublishes      RelationPredicate = "PUBLISHES"
	PredicateAppliesTo      RelationPredicate = "APPLIES_TO"
	PredicateManages        RelationPredicate = "MANAGES"
	PredicateRequires       RelationPredicate = "REQUIRES"
	PredicateContains       RelationPredicate = "CONTAINS"
	PredicateResponsibleFor RelationPredicate = "RESPONSIBLE_FOR"
	PredicateApproves       RelationPredicate = "APPROVES"
	PredicateSupervises     RelationPredicate = "SUPERVISES"
)

var (
	predicateMu  sync.RWMutex
	predicateSet = map[RelationPredicate]struct{}{
		PredicatePublishes:      {},
		PredicateAppliesTo:      {},
		PredicateManages:        {},
		PredicateRequires:       {},
		PredicateContains:       {},
		PredicateResponsibleFor: {},
		PredicateApproves:       {},
		PredicateSupervises:     {},
	}
)

// RegisterPredicate 向词表注册新的谓词。注册对所有后续解析可见。
func RegisterPredicate(p RelationPredicate) {
	predicateMu.Lock()
	defer predicateMu.Unlock()
	predicateSet[p] = struct{}{}
}

// KnownPredicate 判断谓词是否在词表中。
func KnownPredicate(p RelationPredicate) bool {
	predicateMu.RLock()
	defer predicateMu.RUnlock()
	_, ok := predicateSet[p]
	return ok
}

// ParsePredicate 将原始谓词文本归一为大写下划线形式。
// 词表外的谓词原样返回（调用方可按需丢弃或注册）。
func ParsePredicate(s string) RelationPredicate {
	norm := RelationPredicate(strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), " ", "_")))
	return norm
}

// Relation 是两个实体之间的有向关系。Source 与 Target 不得指向同一实体。
type Relation struct {
	Source     string            `json:"source"`
	Target     string            `json:"target"`
	Predicate  RelationPredicate `json:"predicate"`
	Confidence float64           `json:"confidence"`
	Evidence   string            `json:"evidence,omitempty"`
}

// Valid 校验关系结构：端点非空且不自环。
func (r Relation) Valid() bool {
	src := NormalizeName(r.Source)
	dst := NormalizeName(r.Target)
	return src != "" && dst != "" && src != dst && r.Predicate != ""
}
