package json

import (
	"fmt"
	"sort"

	jsoniter "github.com/json-iterator/go"
)

// 定义JSON操作
var (
	json          = jsoniter.ConfigCompatibleWithStandardLibrary
	Marshal       = json.Marshal
	Unmarshal     = json.Unmarshal
	MarshalIndent = json.MarshalIndent
	NewDecoder    = json.NewDecoder
	NewEncoder    = json.NewEncoder
)

// MarshalToString JSON编码为字符串
func MarshalToString(v interface{}) string {
	s, err := json.MarshalToString(v)
	if err != nil {
		return ""
	}
	return s
}

// Fingerprint 将一组元素编码后排序拼接, 与元素顺序无关
func Fingerprint(items []interface{}) (string, error) {
	keys := make([]string, 0, len(items))
	for _, item := range items {
		s, err := json.MarshalToString(item)
		if err != nil {
			return "", fmt.Errorf("序列化失败: %w", err)
		}
		keys = append(keys, s)
	}
	sort.Strings(keys)
	out, err := json.MarshalToString(keys)
	if err != nil {
		return "", fmt.Errorf("序列化失败: %w", err)
	}
	return out, nil
}
