package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"fleetlink/agent"
	"fleetlink/config"
	linklog "fleetlink/log"
	"fleetlink/protocol"
)

func main() {
	flag.CommandLine.SetOutput(os.Stdout)
	configPathFlag := flag.String("config_path", "configs/config.yaml", "配置文件路径（YAML）。如果是目录，则默认读取该目录下的 config.yaml")
	versionFlag := flag.Bool("version", false, "输出版本并退出")
	flag.Usage = func() {
		_, _ = fmt.Fprintf(os.Stdout, "fleet-agent %s\n\n", agent.Version)
		_, _ = fmt.Fprintln(os.Stdout, "用法：")
		_, _ = fmt.Fprintln(os.Stdout, "  fleet-agent [--config_path <path>] [--version] [--help]")
		_, _ = fmt.Fprintln(os.Stdout, "\n参数：")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *versionFlag {
		_, _ = fmt.Fprintln(os.Stdout, agent.Version)
		return
	}

	configPath := resolveConfigPath(*configPathFlag)
	cfg, err := config.Load(configPath)
	if err != nil {
		panic(err)
	}
	if err := linklog.Init(cfg.Logging); err != nil {
		panic(err)
	}

	sup := agent.NewSupervisor(cfg.Agent, defaultHandlers())
	for _, vcfg := range cfg.Fleet {
		if err := sup.Add(vcfg); err != nil {
			linklog.ForVehicle(vcfg.VehicleID).WithError(err).Error("载具注册失败")
			panic(err)
		}
	}

	ctx, cancel := signalContext()
	defer cancel()

	outcomes := sup.StartAll(ctx)
	started := 0
	for id, err := range outcomes {
		if err != nil {
			linklog.ForVehicle(id).WithError(err).Warn("载具启动失败（重连接管或保持断开）")
			continue
		}
		started++
	}
	linklog.With(map[string]any{"total": len(outcomes), "connected": started}).Info("机队启动完成")

	if cfg.Agent.StatusPort > 0 {
		go serveStatus(cfg.Agent.StatusPort, sup)
	}

	done := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(done)
	}()

	<-ctx.Done()
	select {
	case <-done:
	case <-time.After(cfg.Agent.ShutdownTimeout.Std()):
		linklog.L().Warn("停机超时，强制退出")
	}
	linklog.L().Info("节点代理已退出")
}

// defaultHandlers 返回默认的下行处理器：仅记录收到的指令/任务。
// 实际的飞控转换层通过替换这组处理器接入。
func defaultHandlers() agent.Handlers {
	return agent.Handlers{
		OnCommand: func(vehicleID, requestID string, cmd protocol.CommandPayload) error {
			linklog.ForVehicle(vehicleID).
				WithField("request_id", requestID).
				WithField("action", cmd.Action).Info("收到指令")
			return nil
		},
		OnMission: func(vehicleID, requestID string, m protocol.MissionPayload) error {
			linklog.ForVehicle(vehicleID).
				WithField("request_id", requestID).
				WithField("mission_id", m.MissionID).Info("收到任务")
			return nil
		},
	}
}

// serveStatus 暴露 /status 健康快照接口（仅监控用，不做鉴权）。
func serveStatus(port int, sup *agent.Supervisor) {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"version":  agent.Version,
			"vehicles": sup.Health(),
		})
	})
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	linklog.With(map[string]any{"addr": addr}).Info("状态接口已启动")
	if err := http.ListenAndServe(addr, mux); err != nil {
		linklog.L().WithError(err).Error("状态接口退出")
	}
}

func resolveConfigPath(p string) string {
	if p == "" {
		return "configs/config.yaml"
	}
	st, err := os.Stat(p)
	if err != nil {
		return p
	}
	if st.IsDir() {
		return filepath.Join(p, "config.yaml")
	}
	return p
}

// signalContext 创建一个可被 SIGINT/SIGTERM 取消的 Context。
// 返回：
// - ctx: 监听信号并在收到信号时取消的上下文
// - cancel: 主动取消函数
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
