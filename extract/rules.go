package extract

import (
	"strings"
	"unicode"

	"github.com/BaSui01/policyrag/types"
)

// domainSuffixes 政策领域的机构/法规命名后缀，按长度优先匹配。
var domainSuffixes = []struct {
	suffix string
	kind   types.EntityKind
}{
	{"管理委员会", types.EntityOrg},
	{"试验区", types.EntityLocation},
	{"开发区", types.EntityLocation},
	{"委员会", types.EntityOrg},
	{"管理局", types.EntityOrg},
	{"办公室", types.EntityOrg},
	{"实施细则", types.EntityRegulation},
	{"管理办法", types.EntityRegulation},
	{"条例", types.EntityRegulation},
	{"规定", types.EntityRegulation},
	{"办法", types.EntityRegulation},
	{"政策", types.EntityRegulation},
	{"政府", types.EntityOrg},
	{"部门", types.EntityOrg},
	{"企业", types.EntityOrg},
	{"公司", types.EntityOrg},
}

// ruleExtractor 是确定性的规则抽取器，LLM 不可用时兜底。
type ruleExtractor struct {
	confidence float64
}

func newRuleExtractor(confidence float64) *ruleExtractor {
	return &ruleExtractor{confidence: confidence}
}

// extractEntities 规则抽取：中文按领域后缀识别命名片段，
// 拉丁文按连续大写开头的词元串识别。
func (r *ruleExtractor) extractEntities(text string) []types.Entity {
	var entities []types.Entity
	entities = append(entities, r.extractCJK(text)...)
	entities = append(entities, r.extractLatin(text)...)
	return types.MergeEntities(entities)
}

// extractCJK 在每个连续汉字片段内从左到右切分：每次取最早结束的后缀匹配，
// 片段起点（或上一实体末尾）到后缀末尾的子串作为实体。
func (r *ruleExtractor) extractCJK(text string) []types.Entity {
	var entities []types.Entity

	for _, run := range cjkRuns(text) {
		off := 0
		for off < len(run) {
			bestEnd := -1
			var bestKind types.EntityKind
			bestLen := 0
			for _, s := range domainSuffixes {
				idx := strings.Index(run[off:], s.suffix)
				if idx < 0 {
					continue
				}
				end := off + idx + len(s.suffix)
				// 取最早结束的匹配；同一结束位置取更长的后缀定类型
				if bestEnd == -1 || end < bestEnd || (end == bestEnd && len(s.suffix) > bestLen) {
					bestEnd = end
					bestKind = s.kind
					bestLen = len(s.suffix)
				}
			}
			if bestEnd == -1 {
				break
			}

			name := run[off:bestEnd]
			// 过长的片段只保留末尾若干字符，避免整句成为实体
			if n := []rune(name); len(n) > 12 {
				name = string(n[len(n)-12:])
			}
			if len([]rune(name)) >= 2 {
				entities = append(entities, types.Entity{
					Name:       name,
					Kind:       bestKind,
					Confidence: r.confidence,
				})
			}
			off = bestEnd
		}
	}
	return entities
}

// latinStopwords 句首常见虚词，不作为实体首词。
var latinStopwords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "this": {}, "that": {},
	"in": {}, "on": {}, "at": {}, "of": {}, "for": {}, "to": {},
}

// extractLatin 识别连续大写开头词元串（如 "State Council"）。
func (r *ruleExtractor) extractLatin(text string) []types.Entity {
	var entities []types.Entity
	var current []string

	flush := func() {
		for len(current) > 0 {
			if _, stop := latinStopwords[strings.ToLower(current[0])]; !stop {
				break
			}
			current = current[1:]
		}
		if len(current) >= 1 && len(strings.Join(current, " ")) >= 3 {
			entities = append(entities, types.Entity{
				Name:       strings.Join(current, " "),
				Kind:       types.EntityOther,
				Confidence: r.confidence,
			})
		}
		current = nil
	}

	for _, word := range strings.Fields(text) {
		trimmed := strings.TrimFunc(word, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		runes := []rune(trimmed)
		if len(runes) > 0 && unicode.IsUpper(runes[0]) {
			current = append(current, trimmed)
			continue
		}
		flush()
	}
	flush()
	return entities
}

// cjkRuns 返回文本中的连续汉字片段。
func cjkRuns(text string) []string {
	var runs []string
	var current strings.Builder
	for _, r := range text {
		if unicode.Is(unicode.Han, r) {
			current.WriteRune(r)
			continue
		}
		if current.Len() > 0 {
			runs = append(runs, current.String())
			current.Reset()
		}
	}
	if current.Len() > 0 {
		runs = append(runs, current.String())
	}
	return runs
}
