// Package gateway wires the bus, binding registry, instance manager, and
// session lanes into the message-processing core.
package gateway

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/crewgate/crewgate/internal/bus"
	"github.com/crewgate/crewgate/internal/lane"
	"github.com/crewgate/crewgate/internal/manager"
	"github.com/crewgate/crewgate/internal/registry"
)

// Orchestrator drains inbound messages, runs each through its session
// lane and the bound agent, and publishes exactly one response per turn.
type Orchestrator struct {
	Bus      *bus.MessageBus
	Registry *registry.Registry
	Manager  *manager.InstanceManager
	Lanes    *lane.Manager

	LaneMode lane.Mode

	wg sync.WaitGroup
}

// Config assembles an Orchestrator.
type Config struct {
	Bus      *bus.MessageBus
	Registry *registry.Registry
	Manager  *manager.InstanceManager
	LaneMode lane.Mode
	// CollectWindow applies when LaneMode is collect.
	CollectWindow int // milliseconds
}

// New creates an Orchestrator and its lane manager.
func New(cfg Config) *Orchestrator {
	o := &Orchestrator{
		Bus:      cfg.Bus,
		Registry: cfg.Registry,
		Manager:  cfg.Manager,
		LaneMode: cfg.LaneMode,
	}
	o.Lanes = lane.NewManager(lane.ManagerConfig{
		Handler:       o.handle,
		DefaultMode:   cfg.LaneMode,
		CollectWindow: millis(cfg.CollectWindow),
	})
	return o
}

// Run drains the inbound queue until ctx is cancelled, then waits for
// in-flight turns to finish.
func (o *Orchestrator) Run(ctx context.Context) error {
	log.Println("[Gateway] Orchestrator running")

	go o.Bus.DispatchOutbound(ctx)

	for {
		select {
		case <-ctx.Done():
			o.wg.Wait()
			o.Lanes.Stop()
			o.Manager.Shutdown()
			log.Println("[Gateway] Orchestrator stopped")
			return nil

		case msg := <-o.Bus.Inbound():
			// Enqueue here, not in a goroutine: a session's messages must
			// enter its lane in the order they arrived. Only the wait for
			// the turn's result happens concurrently.
			done, err := o.Lanes.SubmitAsync(ctx, msg, o.LaneMode)
			if err != nil {
				log.Printf("[Gateway] lane submit failed for %s: %v", msg.SessionKey(), err)
				continue
			}
			o.wg.Add(1)
			go func() {
				defer o.wg.Done()
				o.publishResult(ctx, done)
			}()
		}
	}
}

// publishResult waits for a queued turn to complete and publishes its
// response, unless the turn was dropped or the orchestrator is stopping.
func (o *Orchestrator) publishResult(ctx context.Context, done <-chan lane.Result) {
	select {
	case result := <-done:
		if result.Dropped {
			return
		}
		o.Bus.PublishOutbound(result.Message)
	case <-ctx.Done():
	}
}

// handle is the lane handler: resolve the binding, get the agent
// instance, run the turn.
func (o *Orchestrator) handle(ctx context.Context, msg bus.InboundMessage) bus.OutboundMessage {
	loop, err := o.Manager.ForSession(msg.SessionKey())
	if err != nil {
		log.Printf("[Gateway] no agent for %s: %v", msg.SessionKey(), err)
		return bus.OutboundMessage{
			Channel: msg.Channel,
			ChatID:  msg.ChatID,
			Content: fmt.Sprintf("No agent is available for this conversation: %v", err),
		}
	}
	return loop.Process(ctx, msg)
}

func millis(ms int) time.Duration {
	if ms <= 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}
