package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"dualwallet/internal/config"
	"dualwallet/internal/handler"
	"dualwallet/internal/svc"

	"github.com/zeromicro/go-zero/core/conf"
	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/rest"
)

var configFile = flag.String("f", "etc/transfer-api.yaml", "the config file")

func main() {
	flag.Parse()

	var c config.Config
	conf.MustLoad(*configFile, &c)

	server := rest.MustNewServer(c.RestConf)
	defer server.Stop()

	ctx := svc.NewServiceContext(c)
	handler.RegisterHandlers(server, ctx)
	ctx.Start()

	// 设置优雅退出
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	fmt.Printf("Starting server at %s:%d...\n", c.Host, c.Port)

	go func() {
		server.Start()
	}()

	<-quit
	logx.Info("shutting down, closing wallet connections")
	ctx.Stop()
}
