package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/lisuiheng/rtvoice/core"
	"github.com/lisuiheng/rtvoice/logger"
)

func main() {
	// 命令行参数
	configPath := flag.String("c", "", "Path to config file")
	debug := flag.Bool("debug", false, "Enable debug mode")
	flag.Parse()

	// .env 中的 RTVOICE_* 变量可以覆盖配置文件
	if err := core.LoadEnv(); err != nil {
		fmt.Printf("Failed to load .env file: %v\n", err)
	}

	// 加载配置
	cfg, err := core.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 交互模式下日志只写文件，避免打断控制台输出
	logCfg := logger.Config{Level: cfg.Logging.Level, MaxAge: cfg.Logging.MaxAge}
	for _, out := range cfg.Logging.Outputs {
		if out != "stdout" && out != "" {
			logCfg.Outputs = append(logCfg.Outputs, out)
		}
	}
	if len(logCfg.Outputs) == 0 {
		logCfg.Outputs = []string{"stderr"}
	}
	if *debug {
		logCfg.Level = "debug"
	}
	if err := logger.Init(logCfg); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	con := newConsole(os.Stdout)

	// 创建会话
	session, err := core.NewSession(cfg, core.Options{
		Logger:   logger.Logger(),
		Observer: con,
	})
	if err != nil {
		con.fail(err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		startInteractive(session, con, os.Stdin)
		_ = session.Close()
	}()

	if err := session.Run(ctx); err != nil {
		con.fail(err)
		os.Exit(1)
	}
	fmt.Println("Exiting...")
}

// controller 交互命令用到的会话操作
type controller interface {
	ToggleRecording() error
	StartRecording() error
	StopRecording() error
	SendText(text string) error
	Interrupt() error
	ClearServerAudio() error
	Reconnect() error
	GetStatus() core.Status
}

// startInteractive 读取命令直到 quit 或输入结束
func startInteractive(c controller, con *console, in io.Reader) {
	reader := bufio.NewReader(in)
	con.help()

	for {
		con.prompt()
		input, err := reader.ReadString('\n')
		input = strings.TrimSpace(input)

		if input != "" && !execute(c, con, input) {
			return
		}
		if err != nil {
			return
		}
	}
}

// execute 执行一条命令，返回 false 表示退出
func execute(c controller, con *console, input string) bool {
	cmd, rest, _ := strings.Cut(input, " ")
	rest = strings.TrimSpace(rest)

	var err error
	switch strings.ToLower(cmd) {
	case "rec", "r":
		err = c.ToggleRecording()
	case "start":
		err = c.StartRecording()
	case "stop":
		err = c.StopRecording()
	case "say":
		if rest == "" {
			err = errors.New("usage: say <text>")
			break
		}
		err = c.SendText(rest)
	case "interrupt", "i":
		err = c.Interrupt()
	case "clear":
		err = c.ClearServerAudio()
	case "reconnect":
		err = c.Reconnect()
	case "status":
		con.status(c.GetStatus())
		return true
	case "exit", "quit", "q":
		return false
	case "help", "?":
		con.help()
		return true
	default:
		con.fail(fmt.Errorf("unknown command: %s", cmd))
		con.help()
		return true
	}

	if err != nil {
		con.fail(err)
	} else {
		con.ok(cmd)
	}
	return true
}
