// Package fleet 编排系统列表、实时通道与状态汇总.
//
// 列表、设备清单和 alive/connected 集合只在 Run 所在的协程中修改;
// 网络请求、设备注册和定时器都在其他协程执行, 结果投递回该协程.
package fleet

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/wisersense-io/mate-service/api"
	"github.com/wisersense-io/mate-service/catalog"
	"github.com/wisersense-io/mate-service/hierarchy"
	"github.com/wisersense-io/mate-service/logger"
	"github.com/wisersense-io/mate-service/model"
	"github.com/wisersense-io/mate-service/pubsub"
	"github.com/wisersense-io/mate-service/realtime"
	"github.com/wisersense-io/mate-service/reconciler"
)

// ErrStopped 编排循环已退出
var ErrStopped = errors.New("fleet: stopped")

// Channel 实时通道
type Channel interface {
	Messages() <-chan model.ChannelMessage
	Start(ctx context.Context) error
	Stop() error
	RegisterDevices(ctx context.Context, refs []model.DeviceRef) error
}

// Session 当前组织
type Session interface {
	Organization() string
	SetOrganization(id string) bool
	Changes() <-chan string
}

// Options 编排参数
type Options struct {
	PageSize        int
	SearchDebounce  time.Duration
	RegisterTimeout time.Duration
	Filter          model.Filter
}

type Fleet struct {
	opts      Options
	catalog   *catalog.Catalog
	channel   Channel
	session   Session
	publisher *pubsub.Publisher
	states    *reconciler.Reconciler

	ops      chan func()
	done     chan struct{}
	register chan []model.DeviceRef
	orgs     <-chan string

	org          string
	devices      []model.DeviceInfo
	channelState model.ChannelState
	channelErr   error
	searchSeq    uint64
	searchTimer  *time.Timer

	view    atomic.Value
	running int32
}

// New 创建编排器, publisher 为 nil 时不广播变更
func New(dir api.Directory, channel Channel, session Session, publisher *pubsub.Publisher, opts Options) *Fleet {
	if opts.PageSize <= 0 {
		opts.PageSize = 20
	}
	if opts.SearchDebounce < 0 {
		opts.SearchDebounce = 0
	}
	if opts.RegisterTimeout <= 0 {
		opts.RegisterTimeout = 30 * time.Second
	}
	f := &Fleet{
		opts:      opts,
		channel:   channel,
		session:   session,
		publisher: publisher,
		states:    reconciler.New(),
		ops:       make(chan func(), 64),
		done:      make(chan struct{}),
		register:  make(chan []model.DeviceRef, 1),
		orgs:      session.Changes(),
	}
	f.catalog = catalog.New(dir, f.post, catalog.Options{
		PageSize: opts.PageSize,
		OnChange: f.catalogChanged,
	})
	f.view.Store(&model.View{
		Systems:      []model.SystemRecord{},
		Catalog:      f.catalog.Status(),
		ChannelState: model.Disconnected,
		Alive:        map[string]bool{},
		Connected:    map[string]bool{},
	})
	return f
}

// Run 启动编排循环, 直到 ctx 结束
func (f *Fleet) Run(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&f.running, 0, 1) {
		return errors.New("fleet: already running")
	}
	defer close(f.done)

	go f.registerLoop(ctx)
	go func() {
		if err := f.channel.Start(ctx); err != nil {
			logger.Warnf("启动实时通道失败: %s", err.Error())
		}
	}()

	f.org = f.session.Organization()
	f.catalog.SetOrganization(f.org)
	f.catalog.LoadFirst(f.opts.Filter)

	messages := f.channel.Messages()
	for {
		select {
		case <-ctx.Done():
			f.shutdown()
			return ctx.Err()
		case fn := <-f.ops:
			fn()
		case msg, ok := <-messages:
			if !ok {
				messages = nil
				continue
			}
			f.handleMessage(msg)
		case org := <-f.orgs:
			f.switchOrganization(org)
		}
	}
}

func (f *Fleet) shutdown() {
	if f.searchTimer != nil {
		f.searchTimer.Stop()
	}
	f.catalog.Close()
	if err := f.channel.Stop(); err != nil {
		logger.Warnf("关闭实时通道失败: %s", err.Error())
	}
}

// post 投递到编排循环, 循环退出后丢弃
func (f *Fleet) post(fn func()) {
	select {
	case f.ops <- fn:
	case <-f.done:
	}
}

// Filter 切换服务端过滤条件
func (f *Fleet) Filter(filter model.Filter) {
	f.post(func() { f.catalog.UpdateFilter(filter) })
}

// Search 本地搜索, 停止输入 SearchDebounce 后生效
func (f *Fleet) Search(text string) {
	f.post(func() {
		f.searchSeq++
		seq := f.searchSeq
		if f.searchTimer != nil {
			f.searchTimer.Stop()
		}
		apply := func() {
			if seq == f.searchSeq {
				f.catalog.Search(text)
			}
		}
		if f.opts.SearchDebounce == 0 {
			apply()
			return
		}
		f.searchTimer = time.AfterFunc(f.opts.SearchDebounce, func() { f.post(apply) })
	})
}

// LoadMore 加载下一页
func (f *Fleet) LoadMore() {
	f.post(f.catalog.LoadNext)
}

// Refresh 重新加载第一页
func (f *Fleet) Refresh() {
	f.post(f.catalog.Refresh)
}

// SetOrganization 切换组织, 变化时由会话通知后重新加载
func (f *Fleet) SetOrganization(id string) bool {
	return f.session.SetOrganization(id)
}

// View 最新快照, 只读
func (f *Fleet) View() *model.View {
	return f.view.Load().(*model.View)
}

// SystemState 单个系统的状态
func (f *Fleet) SystemState(systemID string) model.SystemState {
	v := f.View()
	return model.SystemState{SystemID: systemID, Alive: v.IsAlive(systemID), Connected: v.IsConnected(systemID)}
}

// Devices 当前设备清单
func (f *Fleet) Devices(ctx context.Context) ([]model.DeviceInfo, error) {
	result := make(chan []model.DeviceInfo, 1)
	f.post(func() { result <- append([]model.DeviceInfo(nil), f.devices...) })
	select {
	case devices := <-result:
		return devices, nil
	case <-f.done:
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *Fleet) switchOrganization(org string) {
	if org == f.org {
		return
	}
	logger.WithFields(logger.Fields{"from": f.org, "to": org}).Infof("切换组织")
	f.org = org
	f.catalog.SetOrganization(org)
	f.states.Reset()
	f.catalog.Refresh()
	f.publish(model.ChangeSession)
}

// catalogChanged 每次提交后按完整列表重新计算设备清单并注册, 相同集合由通道去重
func (f *Fleet) catalogChanged(committed bool) {
	if committed {
		devices, errs := hierarchy.Inventory(f.catalog.Records())
		for _, err := range errs {
			logger.WithError(err).Warnf("解析系统层级失败")
		}
		f.devices = devices
		f.enqueueRegistration()
	}
	f.publish(model.ChangeCatalog)
}

func (f *Fleet) handleMessage(msg model.ChannelMessage) {
	if msg.State != nil {
		f.channelState = *msg.State
		f.channelErr = msg.Err
		switch f.channelState {
		case model.Connected:
			f.enqueueRegistration()
		case model.Disconnected:
			f.states.Reset()
		}
		f.publish(model.ChangeChannel)
	}
	if msg.Event != nil && f.states.Apply(*msg.Event) {
		f.publish(model.ChangeState)
	}
}

// enqueueRegistration 只保留最新的一份设备集合, 只在编排循环中调用
func (f *Fleet) enqueueRegistration() {
	refs := model.DeviceRefs(f.devices)
	select {
	case <-f.register:
	default:
	}
	f.register <- refs
}

func (f *Fleet) registerLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case refs := <-f.register:
			f.registerDevices(ctx, refs)
		}
	}
}

func (f *Fleet) registerDevices(ctx context.Context, refs []model.DeviceRef) {
	ctx, cancel := context.WithTimeout(ctx, f.opts.RegisterTimeout)
	defer cancel()
	err := f.channel.RegisterDevices(ctx, refs)
	switch {
	case err == nil:
		logger.WithFields(logger.Fields{"devices": len(refs)}).Debugf("设备注册完成")
	case errors.Is(err, realtime.ErrNotConnected):
		logger.Debugf("实时通道未连接, 连接后重新注册")
	default:
		logger.WithFields(logger.Fields{"devices": len(refs)}).Warnf("设备注册失败: %s", err.Error())
	}
}

func (f *Fleet) publish(kind model.ChangeKind) {
	alive, connected := f.states.Snapshot()
	v := &model.View{
		OrganizationID: f.org,
		Systems:        f.catalog.Visible(),
		Catalog:        f.catalog.Status(),
		ChannelState:   f.channelState,
		DeviceCount:    len(f.devices),
		Alive:          alive,
		Connected:      connected,
	}
	if f.channelErr != nil {
		v.ChannelErr = f.channelErr.Error()
	}
	f.view.Store(v)
	if f.publisher != nil {
		f.publisher.Publish(model.Change{Kind: kind, View: v})
	}
}
