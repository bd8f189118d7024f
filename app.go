package service

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	mw "github.com/labstack/echo/v4/middleware"

	"github.com/wisersense-io/mate-service/api"
	"github.com/wisersense-io/mate-service/config"
	"github.com/wisersense-io/mate-service/fleet"
	"github.com/wisersense-io/mate-service/init/cron"
	initlogger "github.com/wisersense-io/mate-service/init/logger"
	"github.com/wisersense-io/mate-service/init/redisdb"
	"github.com/wisersense-io/mate-service/logger"
	"github.com/wisersense-io/mate-service/pubsub"
	"github.com/wisersense-io/mate-service/realtime"
	"github.com/wisersense-io/mate-service/realtime/hub"
	"github.com/wisersense-io/mate-service/realtime/mqttx"
	"github.com/wisersense-io/mate-service/realtime/natsx"
	restfulapi "github.com/wisersense-io/mate-service/restful-api"
	"github.com/wisersense-io/mate-service/session"
)

// DefaultConfigFile 未指定配置文件时使用
const DefaultConfigFile = "./etc/config.yaml"

type App interface {
	Run()
	GetServer() *echo.Echo
	GetFleet() *fleet.Fleet
}

type app struct {
	cfg        *config.Config
	httpServer *echo.Echo
	fleet      *fleet.Fleet
	channel    *realtime.Channel
	publisher  *pubsub.Publisher
	cleans     []func()
}

func NewApp(configFiles ...string) App {
	if len(configFiles) == 0 {
		configFiles = []string{DefaultConfigFile}
	}
	config.MustLoad(configFiles...)
	config.PrintWithJSON()
	cfg := config.C

	a := &app{cfg: cfg}
	loggerClean, err := initlogger.InitLogger()
	if err != nil {
		logger.Fatalf("初始化日志失败: %s", err.Error())
	}
	a.cleans = append(a.cleans, loggerClean)

	var cli redisdb.Client
	if cfg.Redis.Enable {
		c, clean, err := redisdb.InitRedisDB()
		if err != nil {
			logger.Fatalf("初始化redis失败: %s", err.Error())
		}
		cli = c
		a.cleans = append(a.cleans, clean)
	}
	if cfg.Session.Store == "redis" && cli == nil {
		logger.Fatalf("会话存储为redis, 但redis未启用")
	}
	if cfg.Session.Store != "redis" {
		cli = nil
	}

	store := session.NewStore(cli, session.Config{
		TokenType:      cfg.Session.TokenType,
		Token:          cfg.Session.Token,
		TokenKey:       cfg.Session.TokenKey,
		OrganizationID: cfg.Session.OrganizationID,
	})
	dir := api.NewClient(store, api.Config{
		BaseURL: cfg.Directory.BaseURL(),
		Path:    cfg.Directory.Path,
		Timeout: cfg.Directory.RequestTimeout(),
	})

	a.channel = realtime.NewChannel(newDialer(cfg), store, realtime.Options{
		URL:            cfg.Realtime.URL,
		ReconnectDelay: cfg.Realtime.ReconnectDelayDuration(),
		RequestTimeout: cfg.Realtime.RequestTimeoutDuration(),
	})
	a.publisher = pubsub.NewPublisher(time.Second, 16)
	a.fleet = fleet.New(dir, a.channel, store, a.publisher, fleet.Options{
		PageSize:        cfg.Catalog.PageSize,
		SearchDebounce:  cfg.Catalog.SearchDebounceDuration(),
		RegisterTimeout: cfg.Realtime.RequestTimeoutDuration(),
	})

	c, cronClean, err := cron.InitCron()
	if err != nil {
		logger.Fatalf("初始化定时器失败: %s", err.Error())
	}
	a.cleans = append(a.cleans, cronClean)
	if _, err := cron.AddJob(c, cfg.Catalog.RefreshCron, "catalog-refresh", a.fleet.Refresh); err != nil {
		logger.Fatalf("注册定时刷新失败: %s", err.Error())
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(mw.CORSWithConfig(mw.CORSConfig{
		AllowMethods:  []string{http.MethodGet, http.MethodHead, http.MethodPut, http.MethodPatch, http.MethodPost, http.MethodDelete},
		ExposeHeaders: []string{"count", "token"},
		AllowOrigins:  []string{"*"},
		AllowHeaders:  []string{"Authorization", echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
	}))
	e.Use(mw.Recover())
	e.HTTPErrorHandler = restfulapi.HTTPErrorHandler
	restfulapi.NewAPIView(a.fleet).Register(e)
	restfulapi.NewStream(a.fleet.View, a.publisher).Register(e)
	a.httpServer = e
	return a
}

// newDialer 按配置选择实时通道传输
func newDialer(cfg *config.Config) realtime.Dialer {
	switch cfg.Realtime.Type {
	case "mqtt":
		return mqttx.Dialer{Config: cfg.MQTT}
	case "nats":
		return natsx.Dialer{Config: cfg.NATS}
	default:
		return hub.Dialer{Origin: cfg.Realtime.Origin}
	}
}

func (p *app) Run() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := p.fleet.Run(ctx); err != nil && err != context.Canceled {
			logger.Errorf("编排循环退出: %s", err.Error())
		}
	}()

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		addr := net.JoinHostPort(p.cfg.HTTP.Host, strconv.Itoa(p.cfg.HTTP.Port))
		if err := p.httpServer.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Errorf("http服务启动失败: %s", err.Error())
			os.Exit(1)
		}
	}()

	sig := <-ch
	logger.Infof("关闭服务, %s", sig.String())
	cancel()
	<-done
	p.stop()
}

func (p *app) GetServer() *echo.Echo {
	return p.httpServer
}

func (p *app) GetFleet() *fleet.Fleet {
	return p.fleet
}

func (p *app) stop() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(p.cfg.HTTP.ShutdownTimeout)*time.Second)
	defer cancel()
	if err := p.httpServer.Shutdown(ctx); err != nil {
		logger.Errorf("关闭http服务失败: %s", err.Error())
	}
	if err := p.channel.Close(); err != nil {
		logger.Warnf("关闭实时通道失败: %s", err.Error())
	}
	p.publisher.Close()
	for i := len(p.cleans) - 1; i >= 0; i-- {
		p.cleans[i]()
	}
}
