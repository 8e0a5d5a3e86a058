package types

import "strings"

// EntityKind 是实体类型的封闭枚举。
type EntityKind string

const (
	EntityPerson     EntityKind = "Person"
	EntityOrg        EntityKind = "Org"
	EntityLocation   EntityKind = "Location"
	EntityConcept    EntityKind = "Concept"
	EntityTime       EntityKind = "Time"
	EntityRegulation EntityKind = "Regulation"
	EntityOther      EntityKind = "Other"
)

// kindAliases 将抽取器可能产出的原始类型标签归一到封闭枚举。
var kindAliases = map[string]EntityKind{
	"person":       EntityPerson,
	"人物":           EntityPerson,
	"org":          EntityOrg,
	"organization": EntityOrg,
	"机构":           EntityOrg,
	"组织":           EntityOrg,
	"location":     EntityLocation,
	"place":        EntityLocation,
	"地点":           EntityLocation,
	"concept":      EntityConcept,
	"概念":           EntityConcept,
	"time":         EntityTime,
	"date":         EntityTime,
	"时间":           EntityTime,
	"regulation":   EntityRegulation,
	"policy":       EntityRegulation,
	"law":          EntityRegulation,
	"政策":           EntityRegulation,
	"法规":           EntityRegulation,
	"other":        EntityOther,
}

// ParseEntityKind 将任意类型标签解析为 EntityKind，未知标签归入 EntityOther。
func ParseEntityKind(s string) EntityKind {
	if k, ok := kindAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return k
	}
	switch EntityKind(s) {
	case EntityPerson, EntityOrg, EntityLocation, EntityConcept, EntityTime, EntityRegulation, EntityOther:
		return EntityKind(s)
	}
	return EntityOther
}

// Entity 是从文本中识别出的知识图谱实体。
type Entity struct {
	Name       string     `json:"name"`
	Kind       EntityKind `json:"kind"`
	Confidence float64    `json:"confidence"`
	Aliases    []string   `json:"aliases,omitempty"`
}

// NormalizeName 返回实体名的规范形式：小写并折叠内部空白。
// 实体等价性以规范名为准。
func NormalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

// NormalizedName 返回该实体的规范名。
func (e Entity) NormalizedName() string {
	return NormalizeName(e.Name)
}

// MergeEntities 按规范名去重合并实体列表：别名取并集、置信度取最大值，
// 类型保留首次出现的非 Other 类型。输出顺序与首次出现顺序一致。
func MergeEntities(entities []Entity) []Entity {
	merged := make([]Entity, 0, len(entities))
	index := make(map[string]int, len(entities))

	for _, e := range entities {
		key := e.NormalizedName()
		if key == "" {
			continue
		}
		i, seen := index[key]
		if !seen {
			index[key] = len(merged)
			merged = append(merged, e)
			continue
		}
		prev := &merged[i]
		if e.Confidence > prev.Confidence {
			prev.Confidence = e.Confidence
		}
		if prev.Kind == EntityOther && e.Kind != EntityOther {
			prev.Kind = e.Kind
		}
		prev.Aliases = unionAliases(prev.Aliases, e.Aliases, e.Name, prev.Name)
	}
	return merged
}

func unionAliases(base, extra []string, names ...string) []string {
	seen := make(map[string]struct{}, len(base)+len(extra))
	canonical := ""
	if len(names) > 0 {
		canonical = NormalizeName(names[len(names)-1])
	}
	out := base
	for _, a := range base {
		seen[NormalizeName(a)] = struct{}{}
	}
	add := func(a string) {
		key := NormalizeName(a)
		if key == "" || key == canonical {
			return
		}
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		out = append(out, a)
	}
	for _, a := range extra {
		add(a)
	}
	// 合并时不同的表面形式保留为别名
	for _, n := range names[:max(0, len(names)-1)] {
		add(n)
	}
	return out
}
