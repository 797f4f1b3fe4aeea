package main

import (
	"flag"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/zeromicro/go-zero/core/conf"
	"github.com/zeromicro/go-zero/core/logx"
	zerosvc "github.com/zeromicro/go-zero/core/service"

	"sol-txflow/internal/config"
	"sol-txflow/internal/svc"
)

var configFile = flag.String("f", "etc/txflow.yaml", "the config file")

func main() {
	defer func() {
		if r := recover(); r != nil {
			logx.Errorf("panic: %+v\nstack: %s", r, debug.Stack())
		}
	}()

	flag.Parse()

	var c config.ServiceConfig
	conf.MustLoad(*configFile, &c)

	serviceContext, err := svc.NewServiceContext(c)
	if err != nil {
		logx.Errorf("init service context: %v", err)
		os.Exit(1)
	}
	defer serviceContext.Close()

	sg := zerosvc.NewServiceGroup()
	sg.Add(serviceContext.Server)
	sg.Add(serviceContext.NewOutcomeFlusher())
	if serviceContext.Admin != nil {
		sg.Add(serviceContext.Admin)
	}
	if serviceContext.FeeSync != nil {
		sg.Add(serviceContext.FeeSync)
	}
	if serviceContext.Watcher != nil {
		sg.Add(serviceContext.Watcher)
	}
	serviceContext.StartBackground()

	logx.Infof("Starting txflow service")

	// 启动服务（非阻塞）
	go sg.Start()

	// 等待退出信号
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logx.Info("Shutting down services...")
	sg.Stop()
}
