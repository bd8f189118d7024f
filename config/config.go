package config

import (
	"fmt"
	"log"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"

	"github.com/wisersense-io/mate-service/util/json"
)

var (
	// C 全局配置(需要先执行MustLoad，否则拿不到配置)
	C    = new(Config)
	once sync.Once
)

// MustLoad 加载配置
func MustLoad(fpaths ...string) {
	once.Do(func() {
		viper.SetConfigType("env")
		viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		viper.AutomaticEnv()

		for _, fpath := range fpaths {
			dir, file := path.Split(fpath)
			index := strings.LastIndex(file, ".")
			if index <= 0 {
				log.Fatalln("config file without extension: ", fpath)
			}
			viper.SetConfigName(file[:index])
			viper.SetConfigType(file[index+1:])
			viper.AddConfigPath(dir)
		}
		if err := viper.ReadInConfig(); err != nil {
			log.Fatalln("Fatal error config file: ", err.Error())
		}
		if err := viper.Unmarshal(C); err != nil {
			log.Fatalln("unable to decode into struct: ", err.Error())
		}
		C.Normalize()
	})
}

// PrintWithJSON 基于JSON格式输出配置
func PrintWithJSON() {
	if C.PrintConfig {
		b, err := json.MarshalIndent(C, "", " ")
		if err != nil {
			os.Stdout.WriteString("[CONFIG] JSON marshal error: " + err.Error())
			return
		}
		os.Stdout.WriteString(string(b) + "\n")
	}
}

// Config 配置参数
type Config struct {
	RunMode     string
	PrintConfig bool
	HTTP        HTTP
	Log         Log
	Redis       Redis
	Session     Session
	Directory   Directory
	Realtime    Realtime
	MQTT        MQTT
	NATS        NATS
	Catalog     Catalog
}

// IsDebugMode 是否是debug模式
func (c *Config) IsDebugMode() bool {
	return c.RunMode == "debug"
}

// Normalize 填充缺省值
func (c *Config) Normalize() {
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 9000
	}
	if c.HTTP.ShutdownTimeout == 0 {
		c.HTTP.ShutdownTimeout = 10
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Directory.Schema == "" {
		c.Directory.Schema = "http"
	}
	if c.Directory.Path == "" {
		c.Directory.Path = "/api/systems"
	}
	if c.Directory.Timeout == 0 {
		c.Directory.Timeout = 30
	}
	if c.Realtime.Type == "" {
		c.Realtime.Type = "hub"
	}
	if c.Realtime.ReconnectDelay == 0 {
		c.Realtime.ReconnectDelay = 5
	}
	if c.Realtime.RequestTimeout == 0 {
		c.Realtime.RequestTimeout = 30
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "fleet"
	}
	if c.NATS.SubjectPrefix == "" {
		c.NATS.SubjectPrefix = "fleet"
	}
	if c.Catalog.PageSize <= 0 {
		c.Catalog.PageSize = 20
	}
	if c.Catalog.SearchDebounce == 0 {
		c.Catalog.SearchDebounce = 300
	}
	if c.Session.TokenKey == "" {
		c.Session.TokenKey = "authToken"
	}
}

// Log 日志配置参数
type Log struct {
	Level      int
	Format     string
	Output     string
	OutputFile string
}

// HTTP http配置参数
type HTTP struct {
	Host            string
	Port            int
	ShutdownTimeout int
}

// Redis redis配置参数
type Redis struct {
	Enable   bool
	Type     string
	Addrs    []string
	Password string
	DB       int
	PoolSize int
}

// Session 会话配置, Store 为 static 时使用 Token, 为 redis 时从 redis 读取
type Session struct {
	Store          string
	TokenType      string
	Token          string
	TokenKey       string
	OrganizationID string
}

// Directory 系统目录接口配置
type Directory struct {
	Schema  string
	Host    string
	Port    int
	Path    string
	Timeout int
}

// BaseURL 接口地址
func (a Directory) BaseURL() string {
	if a.Port == 0 {
		return fmt.Sprintf("%s://%s", a.Schema, a.Host)
	}
	return fmt.Sprintf("%s://%s:%d", a.Schema, a.Host, a.Port)
}

// RequestTimeout 请求超时
func (a Directory) RequestTimeout() time.Duration {
	return time.Duration(a.Timeout) * time.Second
}

// Realtime 实时通道配置, Type 为 hub、mqtt 或 nats
type Realtime struct {
	Type           string
	URL            string
	Origin         string
	ReconnectDelay int
	RequestTimeout int
}

func (a Realtime) ReconnectDelayDuration() time.Duration {
	return time.Duration(a.ReconnectDelay) * time.Second
}

func (a Realtime) RequestTimeoutDuration() time.Duration {
	return time.Duration(a.RequestTimeout) * time.Second
}

// MQTT mqtt配置参数
type MQTT struct {
	Host        string
	Port        int
	Username    string
	Password    string
	TopicPrefix string
}

func (a MQTT) DNS() string {
	return fmt.Sprintf("tcp://%s:%d", a.Host, a.Port)
}

// NATS nats配置参数, Realtime.URL 为空时使用 URL
type NATS struct {
	URL           string
	Name          string
	SubjectPrefix string
}

// Catalog 系统列表配置, SearchDebounce 单位毫秒
type Catalog struct {
	PageSize       int
	SearchDebounce int
	RefreshCron    string
}

func (a Catalog) SearchDebounceDuration() time.Duration {
	return time.Duration(a.SearchDebounce) * time.Millisecond
}
