package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"worktracker/internal/app"
	"worktracker/internal/singleton"
	"worktracker/internal/tray"
	"worktracker/pkg/logger"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the tray app and the web timer (default)",
	Args:  cobra.NoArgs,
	RunE:  runTray,
}

func runTray(cmd *cobra.Command, args []string) error {
	configMgr, dataDir, err := bootstrap(false)
	if err != nil {
		return err
	}
	defer logger.Close()

	// 单实例检测
	guard, err := singleton.EnsureSingleInstance(AppName, dataDir)
	if err != nil {
		return err
	}
	defer guard.Close()

	a, err := app.New(configMgr, AppVersion)
	if err != nil {
		return err
	}
	if err := a.Start(context.Background()); err != nil {
		a.Close()
		return err
	}
	fmt.Println("✅ 计时器已启动")
	a.Serve()

	fmt.Println("🎯 启动系统托盘...")
	trayApp := tray.NewTrayApp(a.Store(), a.Worker(), a.URL(), configMgr.GetServer().AutoOpenBrowser, func() {
		if err := a.Close(); err != nil {
			logger.Error("shutdown: %v", err)
		}
	})

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		fmt.Println("🛑 收到退出信号...")
		trayApp.Quit()
	}()

	// 阻塞直到托盘退出
	trayApp.Run()
	return nil
}
