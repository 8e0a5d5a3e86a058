package extract

import (
	"fmt"
	"strings"
)

// extractJSON 从可能带有解释文字的响应中截取首个 { 到最后一个 } 的 JSON 片段。
func extractJSON(response string) (string, error) {
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start == -1 || end == -1 || end <= start {
		return "", fmt.Errorf("no JSON object found in response")
	}
	return response[start : end+1], nil
}
