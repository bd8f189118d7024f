package numberx

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

var (
	numberPattern  = regexp.MustCompile(`^-?\d+(\.\d+)?$`)
	integerPattern = regexp.MustCompile(`^-?\d+$`)
)

func IsNumber(data string) bool {
	return numberPattern.MatchString(strings.TrimSpace(data))
}

// GetFloatNumber 原生数值直接转换, 字符串尝试解析
func GetFloatNumber(data interface{}) (float64, bool) {
	switch v := data.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case string:
		if !IsNumber(v) {
			return 0, false
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// GetIntNumber 同 GetFloatNumber, 小数向零截断
func GetIntNumber(data interface{}) (int, bool) {
	f, ok := GetFloatNumber(data)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int(f), true
}

// GetBool 布尔值, 数值非0为真, 字符串按常见写法识别
func GetBool(data interface{}) (bool, bool) {
	switch v := data.(type) {
	case bool:
		return v, true
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "1", "yes", "on":
			return true, true
		case "false", "0", "no", "off", "":
			return false, true
		}
		return false, false
	}
	if f, ok := GetFloatNumber(data); ok {
		return f != 0, true
	}
	return false, false
}

// NumberText 数值字面量的规范文本: 整数字面量原样保留, 其余按十进制格式化
func NumberText(raw string) string {
	raw = strings.TrimSpace(raw)
	if integerPattern.MatchString(raw) {
		return raw
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return raw
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// ScalarString id类字段的文本: 字符串原样返回, 数值见 NumberText, 其它类型返回空
func ScalarString(r gjson.Result) string {
	switch r.Type {
	case gjson.String:
		return r.Str
	case gjson.Number:
		return NumberText(r.Raw)
	default:
		return ""
	}
}
