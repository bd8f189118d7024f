package hierarchy

import (
	"github.com/tidwall/gjson"

	"github.com/wisersense-io/mate-service/util/numberx"
)

// 字段类型可能漂移(数值或数值字符串), 每个字段一个全函数:
// 原生类型 -> 字符串解析 -> 缺省值
//
//	字段                        原生      字符串             缺省
//	asset.group / asset.type    数值      数值字符串         nil
//	point.pointType             数值      数值字符串         0
//	macAddress / model / name   字符串    (数值格式化)       ""
//	axis.enabled                bool/数值 true/1/yes/on      false
//	axis.sampleRate / range     数值      数值字符串         0
//	meta.version                数值      数值字符串         0
//	id                          字符串    (数值格式化)       必填

func optionalInt(r gjson.Result) *int {
	if !r.Exists() || r.Type == gjson.Null {
		return nil
	}
	if v, ok := numberx.GetIntNumber(r.Value()); ok {
		return &v
	}
	return nil
}

func intOr(r gjson.Result, def int) int {
	if v := optionalInt(r); v != nil {
		return *v
	}
	return def
}

func floatOr(r gjson.Result, def float64) float64 {
	if !r.Exists() {
		return def
	}
	if v, ok := numberx.GetFloatNumber(r.Value()); ok {
		return v
	}
	return def
}

func boolOr(r gjson.Result, def bool) bool {
	if !r.Exists() || r.Type == gjson.Null {
		return def
	}
	if v, ok := numberx.GetBool(r.Value()); ok {
		return v
	}
	return def
}

func requiredID(r gjson.Result) (string, bool) {
	id := numberx.ScalarString(r)
	return id, id != ""
}
