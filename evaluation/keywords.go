// 软件包 evaluation 对生成答案做两级质量评估：
// 快速的四维幻觉检测，以及更全面的六维 EARAG 评估。
package evaluation

import (
	"strings"
	"unicode"
)

// keywordStopwords 关键词抽取的停用词。
var keywordStopwords = map[string]struct{}{
	"的": {}, "了": {}, "在": {}, "是": {}, "有": {}, "和": {}, "与": {},
	"或": {}, "等": {}, "及": {}, "以及": {}, "对": {}, "从": {}, "向": {},
	"年": {}, "月": {}, "日": {}, "号": {}, "第": {}, "条": {}, "款": {}, "项": {},
	"the": {}, "a": {}, "an": {}, "of": {}, "to": {}, "and": {}, "or": {}, "in": {}, "is": {},
}

// extractKeywords 提取文本关键词集合：
// 中文按相邻双字切分，拉丁文按单词切分，过滤停用词与纯数字。
func extractKeywords(text string) map[string]struct{} {
	keywords := make(map[string]struct{})

	var cjk []rune
	var latin strings.Builder
	flushLatin := func() {
		word := strings.ToLower(latin.String())
		latin.Reset()
		if len(word) < 2 {
			return
		}
		if _, stop := keywordStopwords[word]; stop {
			return
		}
		keywords[word] = struct{}{}
	}

	addBigrams := func(runs []rune) {
		for i := 0; i+1 < len(runs); i++ {
			gram := string(runs[i : i+2])
			if _, stop := keywordStopwords[gram]; stop {
				continue
			}
			if _, stop := keywordStopwords[string(runs[i])]; stop {
				continue
			}
			if _, stop := keywordStopwords[string(runs[i+1])]; stop {
				continue
			}
			keywords[gram] = struct{}{}
		}
	}

	for _, r := range text {
		switch {
		case unicode.Is(unicode.Han, r):
			flushLatin()
			cjk = append(cjk, r)
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			addBigrams(cjk)
			cjk = nil
			if unicode.IsLetter(r) {
				latin.WriteRune(r)
			}
		default:
			flushLatin()
			addBigrams(cjk)
			cjk = nil
		}
	}
	flushLatin()
	addBigrams(cjk)
	return keywords
}

// keywordOverlap 计算 answer 关键词被 reference 覆盖的比例。
func keywordOverlap(answer, reference map[string]struct{}) float64 {
	if len(answer) == 0 {
		return 0
	}
	shared := 0
	for k := range answer {
		if _, ok := reference[k]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(answer))
}
