package model

import (
	"fmt"
	"strconv"
	"strings"
)

// SystemRecord 目录接口返回的系统(设备机组)
type SystemRecord struct {
	ID             string  `json:"id"`
	OrganizationID string  `json:"organizationId"`
	TenantID       string  `json:"tenantId"`
	Key            string  `json:"key"`
	Description    string  `json:"description"`
	Hierarchy      string  `json:"hierarchy"`
	HealthScore    float64 `json:"healthScore"`
	HasAlarm       bool    `json:"hasAlarm"`
	HasDiagnosis   bool    `json:"hasDiagnosis"`
	AlarmCount     int     `json:"alarmCount"`
	DiagnosisCount int     `json:"diagnosisCount"`
}

// Filter 系统列表的服务端过滤条件
type Filter int

const (
	FilterAll Filter = iota
	FilterAlarm
	FilterDiagnosis
	FilterHealthy
)

func (f Filter) String() string {
	switch f {
	case FilterAll:
		return "all"
	case FilterAlarm:
		return "alarm"
	case FilterDiagnosis:
		return "diagnosis"
	case FilterHealthy:
		return "healthy"
	default:
		return "unknown"
	}
}

// ParseFilter 按名称或数值解析过滤条件
func ParseFilter(s string) (Filter, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if n, err := strconv.Atoi(s); err == nil {
		if n >= int(FilterAll) && n <= int(FilterHealthy) {
			return Filter(n), nil
		}
		return FilterAll, fmt.Errorf("未知的过滤条件: %d", n)
	}
	for f := FilterAll; f <= FilterHealthy; f++ {
		if f.String() == s {
			return f, nil
		}
	}
	return FilterAll, fmt.Errorf("未知的过滤条件: %s", s)
}

// CatalogStatus 系统列表加载状态
type CatalogStatus struct {
	Filter      Filter `json:"filter"`
	SearchText  string `json:"searchText"`
	Loading     bool   `json:"loading"`
	LoadingMore bool   `json:"loadingMore"`
	HasMore     bool   `json:"hasMore"`
	PageIndex   int    `json:"pageIndex"`
	PageSize    int    `json:"pageSize"`
	Total       int    `json:"total"`
	Err         string `json:"error,omitempty"`
}
