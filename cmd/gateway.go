package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/crewgate/crewgate/internal/bus"
	"github.com/crewgate/crewgate/internal/channels"
	"github.com/crewgate/crewgate/internal/config"
	"github.com/crewgate/crewgate/internal/cron"
	"github.com/crewgate/crewgate/internal/gateway"
	"github.com/crewgate/crewgate/internal/lane"
	"github.com/crewgate/crewgate/internal/providers"
	"github.com/crewgate/crewgate/internal/redis"
)

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Start the crewgate gateway (channels + agents + scheduler)",
	RunE:  runGateway,
}

func init() {
	rootCmd.AddCommand(gatewayCmd)
}

func runGateway(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load("")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	rt, err := buildRuntime(cfg)
	if err != nil {
		return err
	}

	// Optional cross-process session cache.
	if cfg.Redis.URL != "" {
		if redis.Init(redis.Config{URL: cfg.Redis.URL, Password: cfg.Redis.Password, DB: cfg.Redis.DB}) {
			rt.Sessions.WithCache(redis.NewSessionCache())
			defer redis.Close()
		}
	}

	msgBus := bus.New()
	rt.Deps.Bus = msgBus

	// Scheduled jobs re-enter the pipeline as ordinary inbound messages,
	// so replies flow out through the job's channel and chat.
	store := cron.NewFileStore(filepath.Join(config.Dir(), "cron", "jobs.yaml"))
	sched := cron.NewScheduler(store, func(ctx context.Context, job *cron.Job) error {
		msgBus.PublishInbound(bus.InboundMessage{
			Channel:  job.Channel,
			SenderID: "cron:" + job.ID,
			ChatID:   job.ChatID,
			Content:  job.Message,
		})
		return nil
	})
	rt.Deps.Scheduler = sched

	// SIGHUP re-reads config.json and hot-swaps provider credentials and
	// model without dropping in-flight turns. Agent definition changes go
	// through agents.yaml, which reloads on its own.
	provider := providers.NewDynamicProvider(makeProvider(cfg))
	hupCh := make(chan os.Signal, 1)
	signal.Notify(hupCh, syscall.SIGHUP)
	go func() {
		for range hupCh {
			next, err := config.Load("")
			if err != nil {
				log.Printf("[Gateway] config reload failed: %v", err)
				continue
			}
			provider.Swap(makeProvider(next))
			log.Printf("[Gateway] provider config reloaded (model=%s)", provider.DefaultModel())
		}
	}()

	rt.finish(provider)

	orch := gateway.New(gateway.Config{
		Bus:           msgBus,
		Registry:      rt.Registry,
		Manager:       rt.Manager,
		LaneMode:      lane.Mode(cfg.Gateway.LaneMode),
		CollectWindow: cfg.Gateway.CollectWindowMS,
	})

	chMgr := channels.NewManager(msgBus)
	if tg := cfg.Channel.Telegram; tg != nil && tg.Token != "" {
		chMgr.Register(channels.NewTelegramChannel(tg.Token, tg.AllowFrom, msgBus))
	}
	if ws := cfg.Channel.WebSocket; ws != nil && ws.Listen != "" {
		chMgr.Register(channels.NewWebSocketChannel(ws.Listen, ws.AllowFrom, msgBus))
	}
	if enabled := chMgr.EnabledChannels(); len(enabled) > 0 {
		log.Printf("[Gateway] channels enabled: %v", enabled)
	} else {
		log.Printf("[Gateway] no channels enabled; agents reachable via 'crewgate agent' only")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("[Gateway] shutting down...")
		chMgr.StopAll()
		sched.Stop()
		cancel()
	}()

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}

	go func() {
		if err := chMgr.StartAll(ctx); err != nil {
			log.Printf("[Gateway] channels: %v", err)
		}
	}()
	return orch.Run(ctx)
}
