package graph

import "strconv"

// 多跳遍历的跳数边界。
const (
	MinHops     = 1
	MaxHops     = 10
	DefaultHops = 2
)

// NormalizeMaxHops 把任意来源的 max_hops 值收敛到 [MinHops, MaxHops]。
// 无法解释为数值的输入（nil、非数值字符串、其他类型）回落到 DefaultHops；
// 数值输入按边界截断。该契约是硬性的：-5→1, 0→1, 1→1, 10→10, 15→10, "abc"→2。
func NormalizeMaxHops(value any) int {
	hops, ok := toInt(value)
	if !ok {
		return DefaultHops
	}
	if hops < MinHops {
		return MinHops
	}
	if hops > MaxHops {
		return MaxHops
	}
	return hops
}

func toInt(value any) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case int8:
		return int(v), true
	case int16:
		return int(v), true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case uint:
		return int(v), true
	case uint8:
		return int(v), true
	case uint16:
		return int(v), true
	case uint32:
		return int(v), true
	case uint64:
		return int(v), true
	case float32:
		return int(v), true
	case float64:
		return int(v), true
	case string:
		if i, err := strconv.Atoi(v); err == nil {
			return i, true
		}
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return int(f), true
		}
		return 0, false
	default:
		return 0, false
	}
}
