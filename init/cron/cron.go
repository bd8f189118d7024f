package cron

import (
	"github.com/robfig/cron/v3"

	"github.com/wisersense-io/mate-service/logger"
)

type printer struct{}

func (printer) Printf(format string, args ...interface{}) {
	logger.Debugf(format, args...)
}

// InitCron 初始化定时器, 表达式带秒
func InitCron() (*cron.Cron, func(), error) {
	l := cron.PrintfLogger(printer{})
	c := cron.New(cron.WithSeconds(), cron.WithLogger(l), cron.WithChain(cron.Recover(l), cron.SkipIfStillRunning(l)))
	c.Start()

	cleanFunc := func() {
		ctx := c.Stop()

		if ctx.Err() != nil {
			logger.Errorf("cron stop error: %s", ctx.Err().Error())
		}
	}
	return c, cleanFunc, nil
}

// AddJob 注册定时任务, spec 为空时不注册
func AddJob(c *cron.Cron, spec, name string, fn func()) (cron.EntryID, error) {
	if spec == "" {
		return 0, nil
	}
	id, err := c.AddFunc(spec, func() {
		logger.WithFields(logger.Fields{"job": name}).Debugf("执行定时任务")
		fn()
	})
	if err != nil {
		return 0, err
	}
	logger.WithFields(logger.Fields{"job": name, "spec": spec}).Infof("定时任务已注册")
	return id, nil
}
