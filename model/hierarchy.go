package model

// Hierarchy 系统内嵌的资产/测点/设备树
type Hierarchy struct {
	Icon   IconDescriptor `json:"icon"`
	Meta   SystemMeta     `json:"meta"`
	Assets []Asset        `json:"assets"`
}

type IconDescriptor struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

type SystemMeta struct {
	Version   int    `json:"version"`
	UpdatedAt string `json:"updatedAt"`
}

// Asset 资产, Group/Type 缺省时为 nil
type Asset struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Group  *int    `json:"group,omitempty"`
	Type   *int    `json:"type,omitempty"`
	Points []Point `json:"points"`
}

// Point 测点
type Point struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	PointType int      `json:"pointType"`
	Devices   []Device `json:"devices"`
}

// Device 传感器
type Device struct {
	ID         string       `json:"id"`
	MacAddress string       `json:"macAddress"`
	Model      string       `json:"model"`
	Axes       []AxisConfig `json:"axes"`
}

type AxisConfig struct {
	Axis       string  `json:"axis"`
	Enabled    bool    `json:"enabled"`
	SampleRate float64 `json:"sampleRate"`
	Range      float64 `json:"range"`
}

// DeviceInfo 从系统树展开得到的设备清单项
type DeviceInfo struct {
	DeviceID        string `json:"deviceId"`
	MacAddress      string `json:"macAddress"`
	SystemID        string `json:"systemId"`
	PointID         string `json:"pointId"`
	ConnectionState bool   `json:"connectionState"`
	RunningState    bool   `json:"runningState"`
}

// Ref 注册到实时网关的设备引用
func (d DeviceInfo) Ref() DeviceRef {
	return DeviceRef{DeviceID: d.DeviceID, SystemID: d.SystemID, MacAddress: d.MacAddress}
}

// DeviceRef 注册设备的请求体
type DeviceRef struct {
	DeviceID   string `json:"deviceId"`
	SystemID   string `json:"systemId"`
	MacAddress string `json:"macAddress"`
}

// DeviceRefs 转为注册请求体
func DeviceRefs(devices []DeviceInfo) []DeviceRef {
	refs := make([]DeviceRef, 0, len(devices))
	for _, d := range devices {
		refs = append(refs, d.Ref())
	}
	return refs
}
