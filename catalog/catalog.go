// Package catalog 分页加载系统列表.
//
// 整体加载(首页/刷新/切换过滤条件)互相取代: 新的加载取消旧的, 旧结果晚到也不会提交.
// 所有方法都必须在编排循环中调用, 网络请求在独立协程中执行, 结果通过 Executor 投递回循环.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wisersense-io/mate-service/api"
	"github.com/wisersense-io/mate-service/logger"
	"github.com/wisersense-io/mate-service/model"
)

// ErrFetch 加载失败, 当前列表已清空
var ErrFetch = errors.New("catalog: fetch failed")

// Executor 将函数投递到编排循环执行
type Executor func(func())

// Options 列表参数
type Options struct {
	PageSize int
	// OnChange 状态变化后调用, committed 表示列表或搜索结果已提交
	OnChange func(committed bool)
}

type Catalog struct {
	dir      api.Directory
	post     Executor
	pageSize int
	onChange func(bool)

	org         string
	filter      model.Filter
	search      string
	records     []model.SystemRecord
	visible     []model.SystemRecord
	pageIndex   int
	hasMore     bool
	loading     bool
	loadingMore bool
	err         error

	gen     uint64
	nextSeq uint64
	cancel  context.CancelFunc
}

func New(dir api.Directory, post Executor, opts Options) *Catalog {
	if opts.PageSize <= 0 {
		opts.PageSize = 20
	}
	onChange := opts.OnChange
	if onChange == nil {
		onChange = func(bool) {}
	}
	return &Catalog{
		dir:      dir,
		post:     post,
		pageSize: opts.PageSize,
		onChange: onChange,
		visible:  []model.SystemRecord{},
	}
}

// SetOrganization 设置组织, 下一次整体加载生效
func (c *Catalog) SetOrganization(org string) {
	c.org = org
}

func (c *Catalog) Organization() string {
	return c.org
}

// LoadFirst 按过滤条件加载第一页
func (c *Catalog) LoadFirst(filter model.Filter) {
	c.filter = filter
	c.fullLoad()
}

// Refresh 按当前过滤条件重新加载第一页
func (c *Catalog) Refresh() {
	c.fullLoad()
}

// UpdateFilter 切换过滤条件并重新加载
func (c *Catalog) UpdateFilter(filter model.Filter) {
	c.LoadFirst(filter)
}

// Search 客户端搜索, 不发请求
func (c *Catalog) Search(text string) {
	c.search = text
	c.derive()
	c.onChange(true)
}

// LoadNext 加载下一页. 正在加载、没有更多或整体加载未完成时忽略.
func (c *Catalog) LoadNext() {
	if c.loadingMore || c.loading || !c.hasMore {
		return
	}
	c.loadingMore = true
	c.nextSeq++
	seq := c.nextSeq
	org, filter, skip, take := c.org, c.filter, c.pageIndex*c.pageSize, c.pageSize

	go func() {
		records, err := fetch(context.Background(), c.dir, org, filter, skip, take)
		c.post(func() { c.commitNext(seq, records, err) })
	}()
	c.onChange(false)
}

// Close 取消进行中的整体加载
func (c *Catalog) Close() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.gen++
	c.nextSeq++
}

func (c *Catalog) fullLoad() {
	if c.cancel != nil {
		c.cancel()
	}
	c.gen++
	gen := c.gen
	// 进行中的下一页结果作废
	c.nextSeq++
	c.loadingMore = false

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.loading = true
	org, filter, take := c.org, c.filter, c.pageSize

	go func() {
		records, err := fetch(ctx, c.dir, org, filter, 0, take)
		c.post(func() { c.commitFull(gen, records, err) })
	}()
	c.onChange(false)
}

// fetch 请求前后各检查一次取消
func fetch(ctx context.Context, dir api.Directory, org string, filter model.Filter, skip, take int) ([]model.SystemRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	records, err := dir.FetchSystems(ctx, org, filter, skip, take)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	return records, err
}

func (c *Catalog) commitFull(gen uint64, records []model.SystemRecord, err error) {
	if gen != c.gen {
		return
	}
	c.loading = false
	c.cancel = nil
	if errors.Is(err, context.Canceled) {
		c.onChange(false)
		return
	}
	if err != nil {
		c.fail(err)
		return
	}
	c.records = append([]model.SystemRecord(nil), records...)
	c.pageIndex = 1
	c.hasMore = len(records) >= c.pageSize
	c.err = nil
	c.derive()
	c.onChange(true)
}

func (c *Catalog) commitNext(seq uint64, records []model.SystemRecord, err error) {
	if seq != c.nextSeq {
		return
	}
	c.loadingMore = false
	if err != nil {
		c.fail(err)
		return
	}
	c.records = append(c.records, records...)
	c.pageIndex++
	if len(records) < c.pageSize {
		c.hasMore = false
	}
	c.derive()
	c.onChange(true)
}

// fail 加载失败时清空列表
func (c *Catalog) fail(err error) {
	logger.WithFields(logger.Fields{"organization": c.org, "filter": c.filter.String()}).Errorf("加载系统列表失败: %s", err.Error())
	c.err = fmt.Errorf("%w: %v", ErrFetch, err)
	c.records = nil
	c.pageIndex = 0
	c.hasMore = false
	c.derive()
	c.onChange(true)
}

// derive 按搜索词重新计算可见列表
func (c *Catalog) derive() {
	text := strings.ToLower(c.search)
	visible := make([]model.SystemRecord, 0, len(c.records))
	for _, r := range c.records {
		if text == "" ||
			strings.Contains(strings.ToLower(r.Key), text) ||
			strings.Contains(strings.ToLower(r.Description), text) {
			visible = append(visible, r)
		}
	}
	c.visible = visible
}

// Records 当前持有的完整列表(不受搜索影响)
func (c *Catalog) Records() []model.SystemRecord {
	return append([]model.SystemRecord(nil), c.records...)
}

// Visible 过滤并搜索后的列表
func (c *Catalog) Visible() []model.SystemRecord {
	return append([]model.SystemRecord{}, c.visible...)
}

func (c *Catalog) Err() error {
	return c.err
}

func (c *Catalog) Status() model.CatalogStatus {
	s := model.CatalogStatus{
		Filter:      c.filter,
		SearchText:  c.search,
		Loading:     c.loading,
		LoadingMore: c.loadingMore,
		HasMore:     c.hasMore,
		PageIndex:   c.pageIndex,
		PageSize:    c.pageSize,
		Total:       len(c.records),
	}
	if c.err != nil {
		s.Err = c.err.Error()
	}
	return s
}
