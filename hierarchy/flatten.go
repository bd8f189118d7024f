package hierarchy

import (
	"errors"

	"github.com/wisersense-io/mate-service/model"
)

// Flatten 展开系统树为设备清单, 没有测点的资产和没有设备的测点直接跳过
func Flatten(h *model.Hierarchy, systemID string) []model.DeviceInfo {
	if h == nil {
		return nil
	}
	var devices []model.DeviceInfo
	for _, asset := range h.Assets {
		if len(asset.Points) == 0 {
			continue
		}
		for _, point := range asset.Points {
			if len(point.Devices) == 0 {
				continue
			}
			for _, d := range point.Devices {
				devices = append(devices, model.DeviceInfo{
					DeviceID:   d.ID,
					MacAddress: d.MacAddress,
					SystemID:   systemID,
					PointID:    point.ID,
				})
			}
		}
	}
	return devices
}

// Inventory 展开全部系统记录. 解析失败的记录不计入清单, 以 *ParseError 形式返回.
func Inventory(records []model.SystemRecord) ([]model.DeviceInfo, []error) {
	devices := make([]model.DeviceInfo, 0)
	var diags []error
	for _, rec := range records {
		h, err := Parse(rec.Hierarchy)
		if err != nil {
			var pe *ParseError
			if errors.As(err, &pe) {
				pe.SystemID = rec.ID
			} else {
				pe = &ParseError{SystemID: rec.ID, Err: err}
			}
			diags = append(diags, pe)
			continue
		}
		devices = append(devices, Flatten(h, rec.ID)...)
	}
	return devices, diags
}
