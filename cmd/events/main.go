// Command events tails follow lifecycle events from NATS JetStream.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"aprs-friend-alert/internal/config"
	"aprs-friend-alert/internal/pkg/logger"
	"aprs-friend-alert/pkg/events"
	pktNats "aprs-friend-alert/pkg/nats"

	"github.com/fatih/color"
)

var palette = map[string]*color.Color{
	events.FollowStarted:  color.New(color.FgCyan),
	events.FollowProgress: color.New(color.FgWhite),
	events.FollowArrived:  color.New(color.FgGreen, color.Bold),
	events.FollowStopped:  color.New(color.FgYellow),
	events.SourceLost:     color.New(color.FgRed, color.Bold),
}

func main() {
	cfg := config.Load()
	url := flag.String("nats", cfg.App.NatsURL, "NATS server URL")
	eventType := flag.String("type", "", "only show this event type")
	durable := flag.String("durable", "events-tail", "durable consumer name")
	flag.Parse()

	if *url == "" {
		color.Red("NATS_URL is not set")
		os.Exit(1)
	}

	log := logger.NewZapLogger(logger.Options{
		FilePath:     cfg.Logging.FilePath,
		ConsoleLevel: "warn",
		FileLevel:    cfg.Logging.FileLevel,
	})
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sub, err := pktNats.NewSubscriber(*url, log)
	if err != nil {
		color.Red("connect: %v", err)
		os.Exit(1)
	}
	defer sub.Close()

	err = sub.Subscribe(ctx, *eventType, *durable, func(ctx context.Context, event events.Event) error {
		c, ok := palette[event.EventType()]
		if !ok {
			c = color.New(color.Reset)
		}
		data, _ := json.Marshal(event.Payload())
		c.Printf("%s %-16s %s\n", event.Timestamp().Format("2006-01-02 15:04:05"), event.EventType(), data)
		return nil
	})
	if err != nil {
		color.Red("subscribe: %v", err)
		os.Exit(1)
	}

	<-ctx.Done()
}
