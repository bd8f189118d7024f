package model

// View 提供给界面层的只读快照, 创建后不再修改
type View struct {
	OrganizationID string          `json:"organizationId"`
	Systems        []SystemRecord  `json:"systems"`
	Catalog        CatalogStatus   `json:"catalog"`
	ChannelState   ChannelState    `json:"channelState"`
	ChannelErr     string          `json:"channelError,omitempty"`
	DeviceCount    int             `json:"deviceCount"`
	Alive          map[string]bool `json:"alive"`
	Connected      map[string]bool `json:"connected"`
}

func (v *View) IsAlive(systemID string) bool {
	return v.Alive[systemID]
}

func (v *View) IsConnected(systemID string) bool {
	return v.Connected[systemID]
}

// System 按id查找当前列表中的系统
func (v *View) System(id string) (SystemRecord, bool) {
	for _, s := range v.Systems {
		if s.ID == id {
			return s, true
		}
	}
	return SystemRecord{}, false
}

// ChangeKind 快照变更原因
type ChangeKind string

const (
	ChangeCatalog ChangeKind = "catalog"
	ChangeChannel ChangeKind = "channel"
	ChangeState   ChangeKind = "state"
	ChangeSession ChangeKind = "session"
)

// Change 快照变更通知
type Change struct {
	Kind ChangeKind `json:"kind"`
	View *View      `json:"view"`
}

// SystemState 单个系统的派生状态
type SystemState struct {
	SystemID  string `json:"systemId"`
	Alive     bool   `json:"alive"`
	Connected bool   `json:"connected"`
}
