// Command simulate drives one follow session from a replayed route and prints
// every chat message to the console instead of sending it.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"time"

	"aprs-friend-alert/internal/follow"
	"aprs-friend-alert/internal/model"
	"aprs-friend-alert/internal/pkg/logger"
	"aprs-friend-alert/internal/poller"
	"aprs-friend-alert/pkg/aprs"
	"aprs-friend-alert/pkg/ors"

	"github.com/fatih/color"
)

var (
	header  = color.New(color.FgCyan, color.Bold)
	owner   = color.New(color.FgYellow)
	friend  = color.New(color.FgGreen)
	warning = color.New(color.FgRed)
)

type consoleSink struct {
	owner string
}

func (s consoleSink) Send(ctx context.Context, chatID, text string) {
	c := friend
	if chatID == s.owner {
		c = owner
	}
	c.Printf("[%s] -> %s: %s\n", time.Now().Format("15:04:05"), chatID, text)
}

type staticOwner string

func (o staticOwner) Owner() string { return string(o) }

// defaultRoute walks in a straight line towards dest from roughly 35 km away.
func defaultRoute(dest model.Coordinate, steps int) []model.Coordinate {
	start := model.Coordinate{Longitude: dest.Longitude - 0.4, Latitude: dest.Latitude - 0.2}
	out := make([]model.Coordinate, steps)
	for i := 0; i < steps; i++ {
		f := float64(i+1) / float64(steps)
		out[i] = model.Coordinate{
			Longitude: start.Longitude + (dest.Longitude-start.Longitude)*f,
			Latitude:  start.Latitude + (dest.Latitude-start.Latitude)*f,
		}
	}
	out[steps-1] = dest
	return out
}

func main() {
	routeFile := flag.String("route", "", "JSON list of [lng, lat] pairs to replay")
	lng := flag.Float64("lng", 13.4, "destination longitude")
	lat := flag.Float64("lat", 52.5, "destination latitude")
	interval := flag.Duration("interval", time.Second, "poll interval")
	speed := flag.Float64("speed", 50, "assumed speed in km/h when no routing key is set")
	orsKey := flag.String("ors-key", os.Getenv("OPEN_ROUTE_SERVICE_KEY"), "OpenRouteService API key")
	flag.Parse()

	log := logger.NewNopLogger()
	dest := model.Coordinate{Longitude: *lng, Latitude: *lat}
	if err := dest.Validate(); err != nil {
		warning.Printf("invalid destination: %v\n", err)
		os.Exit(1)
	}

	var source *aprs.ReplaySource
	if *routeFile != "" {
		var err error
		if source, err = aprs.LoadReplaySource(*routeFile); err != nil {
			warning.Println(err)
			os.Exit(1)
		}
	} else {
		source = aprs.NewReplaySource(defaultRoute(dest, 12))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var routes follow.RouteService = straightLine{speedKmh: *speed}
	if *orsKey != "" {
		client := ors.NewClient("https://api.openrouteservice.org", *orsKey, log)
		if err := client.Validate(ctx); err != nil {
			warning.Printf("OpenRouteService unavailable (%v), using straight-line estimates\n", err)
		} else {
			routes = client
		}
	}

	cfg := poller.DefaultConfig()
	cfg.Interval = *interval
	cfg.BackoffBase = 1
	cfg.BackoffGrowth = 1
	p := poller.New(source, cfg, log)

	done := make(chan struct{})
	var (
		started atomic.Bool
		once    sync.Once
	)
	session := follow.NewSession(follow.DefaultLadder(), routes, consoleSink{owner: "owner"}, p, staticOwner("owner"), log,
		follow.WithObserver(func(snap follow.Snapshot) {
			if snap.Active {
				started.Store(true)
				return
			}
			if started.Load() {
				once.Do(func() { close(done) })
			}
		}),
	)
	p.SetHandlers(session.OnPositionSample, session.OnSourceLost)

	header.Printf("Following to %s, polling every %s\n", dest, *interval)
	if err := session.Start(follow.Destination{Label: "Destination", Coordinate: dest}, []string{"friend"}); err != nil {
		warning.Println(err)
		os.Exit(1)
	}

	select {
	case <-done:
		header.Println("Session finished.")
	case <-ctx.Done():
		session.Stop()
		fmt.Println()
		header.Println("Interrupted.")
	}
}
