package restfulapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/wisersense-io/mate-service/model"
)

// Fleet 视图接口依赖的编排器
type Fleet interface {
	View() *model.View
	SystemState(systemID string) model.SystemState
	Filter(filter model.Filter)
	Search(text string)
	LoadMore()
	Refresh()
	SetOrganization(id string) bool
}

// APIView 系统列表与实时状态接口
type APIView struct {
	fleet Fleet
}

func NewAPIView(f Fleet) *APIView {
	return &APIView{fleet: f}
}

// Register 注册路由
func (p *APIView) Register(e *echo.Echo) {
	e.GET("/check", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	e.GET("/status", p.Status)
	e.GET("/systems", p.Systems)
	e.GET("/systems/:id/state", p.State)
	e.POST("/catalog/filter", p.UpdateFilter)
	e.POST("/catalog/search", p.Search)
	e.POST("/catalog/next", p.LoadMore)
	e.POST("/catalog/refresh", p.Refresh)
	e.PUT("/session/organization", p.SetOrganization)
}

// Status 完整快照
func (p *APIView) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, p.fleet.View())
}

// Systems 当前可见的系统列表, 数量写在 count 头中
func (p *APIView) Systems(c echo.Context) error {
	v := p.fleet.View()
	c.Response().Header().Set("count", strconv.Itoa(len(v.Systems)))
	return c.JSON(http.StatusOK, v.Systems)
}

// State 单个系统的 alive/connected 状态
func (p *APIView) State(c echo.Context) error {
	id := c.Param("id")
	if _, ok := p.fleet.View().System(id); !ok {
		return NewHTTPError(http.StatusNotFound, "system", "系统不存在: "+id)
	}
	return c.JSON(http.StatusOK, p.fleet.SystemState(id))
}

type filterRequest struct {
	Filter string `json:"filter"`
}

func (p *APIView) UpdateFilter(c echo.Context) error {
	var req filterRequest
	if err := c.Bind(&req); err != nil {
		return NewHTTPError(http.StatusBadRequest, "filter", "请求格式错误")
	}
	f, err := model.ParseFilter(req.Filter)
	if err != nil {
		return NewHTTPError(http.StatusBadRequest, "filter", err.Error())
	}
	p.fleet.Filter(f)
	return c.NoContent(http.StatusAccepted)
}

type searchRequest struct {
	Text string `json:"text"`
}

func (p *APIView) Search(c echo.Context) error {
	var req searchRequest
	if err := c.Bind(&req); err != nil {
		return NewHTTPError(http.StatusBadRequest, "search", "请求格式错误")
	}
	p.fleet.Search(req.Text)
	return c.NoContent(http.StatusAccepted)
}

func (p *APIView) LoadMore(c echo.Context) error {
	p.fleet.LoadMore()
	return c.NoContent(http.StatusAccepted)
}

func (p *APIView) Refresh(c echo.Context) error {
	p.fleet.Refresh()
	return c.NoContent(http.StatusAccepted)
}

type organizationRequest struct {
	OrganizationID string `json:"organizationId"`
}

// SetOrganization 切换组织
func (p *APIView) SetOrganization(c echo.Context) error {
	var req organizationRequest
	if err := c.Bind(&req); err != nil {
		return NewHTTPError(http.StatusBadRequest, "organization", "请求格式错误")
	}
	if req.OrganizationID == "" {
		return NewHTTPError(http.StatusBadRequest, "organization", "组织id不能为空")
	}
	changed := p.fleet.SetOrganization(req.OrganizationID)
	return c.JSON(http.StatusOK, map[string]interface{}{"changed": changed})
}
