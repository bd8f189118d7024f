package hierarchy

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/wisersense-io/mate-service/model"
	"github.com/wisersense-io/mate-service/util/numberx"
)

// Parse 解析系统记录中内嵌的系统树字符串.
// 类型漂移的字段按 coerce.go 中的规则降级; 资产/测点/设备的 id 缺失时整条记录失败.
func Parse(raw string) (*model.Hierarchy, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || !gjson.Valid(raw) {
		return nil, ErrMalformed
	}
	doc := gjson.Parse(raw)
	if !doc.IsObject() {
		return nil, ErrMalformed
	}

	h := &model.Hierarchy{
		Icon: model.IconDescriptor{
			Name:  numberx.ScalarString(doc.Get("icon.name")),
			Color: numberx.ScalarString(doc.Get("icon.color")),
		},
		Meta: model.SystemMeta{
			Version:   intOr(doc.Get("meta.version"), 0),
			UpdatedAt: numberx.ScalarString(doc.Get("meta.updatedAt")),
		},
	}

	assets := doc.Get("assets")
	if !assets.IsArray() {
		return h, nil
	}
	for i, a := range assets.Array() {
		asset, err := parseAsset(a, fmt.Sprintf("assets[%d]", i))
		if err != nil {
			return nil, err
		}
		h.Assets = append(h.Assets, asset)
	}
	return h, nil
}

func parseAsset(r gjson.Result, path string) (model.Asset, error) {
	if !r.IsObject() {
		return model.Asset{}, &ParseError{Path: path, Err: ErrMalformed}
	}
	id, ok := requiredID(r.Get("id"))
	if !ok {
		return model.Asset{}, &ParseError{Path: path + ".id", Err: ErrMissingID}
	}
	asset := model.Asset{
		ID:    id,
		Name:  numberx.ScalarString(r.Get("name")),
		Group: optionalInt(r.Get("group")),
		Type:  optionalInt(r.Get("type")),
	}
	points := r.Get("points")
	if !points.IsArray() {
		return asset, nil
	}
	for i, p := range points.Array() {
		point, err := parsePoint(p, fmt.Sprintf("%s.points[%d]", path, i))
		if err != nil {
			return model.Asset{}, err
		}
		asset.Points = append(asset.Points, point)
	}
	return asset, nil
}

func parsePoint(r gjson.Result, path string) (model.Point, error) {
	if !r.IsObject() {
		return model.Point{}, &ParseError{Path: path, Err: ErrMalformed}
	}
	id, ok := requiredID(r.Get("id"))
	if !ok {
		return model.Point{}, &ParseError{Path: path + ".id", Err: ErrMissingID}
	}
	point := model.Point{
		ID:        id,
		Name:      numberx.ScalarString(r.Get("name")),
		PointType: intOr(r.Get("pointType"), 0),
	}
	devices := r.Get("devices")
	if !devices.IsArray() {
		return point, nil
	}
	for i, d := range devices.Array() {
		device, err := parseDevice(d, fmt.Sprintf("%s.devices[%d]", path, i))
		if err != nil {
			return model.Point{}, err
		}
		point.Devices = append(point.Devices, device)
	}
	return point, nil
}

func parseDevice(r gjson.Result, path string) (model.Device, error) {
	if !r.IsObject() {
		return model.Device{}, &ParseError{Path: path, Err: ErrMalformed}
	}
	id, ok := requiredID(r.Get("id"))
	if !ok {
		return model.Device{}, &ParseError{Path: path + ".id", Err: ErrMissingID}
	}
	device := model.Device{
		ID:         id,
		MacAddress: numberx.ScalarString(r.Get("macAddress")),
		Model:      numberx.ScalarString(r.Get("model")),
	}
	// 轴配置部分字段错误时保留该轴, 仅对应字段取缺省值
	r.Get("axes").ForEach(func(_, ax gjson.Result) bool {
		if !ax.IsObject() {
			return true
		}
		device.Axes = append(device.Axes, model.AxisConfig{
			Axis:       numberx.ScalarString(ax.Get("axis")),
			Enabled:    boolOr(ax.Get("enabled"), false),
			SampleRate: floatOr(ax.Get("sampleRate"), 0),
			Range:      floatOr(ax.Get("range"), 0),
		})
		return true
	})
	return device, nil
}
