package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/annel0/mmo-grid/internal/eventbus"
)

const timeFormat = "2006-01-02T15:04:05Z"

func main() {
	var (
		natsURL = flag.String("nats", "nats://localhost:4222", "NATS server URL")
		stream  = flag.String("stream", "GRID", "JetStream stream name")
		sources = flag.String("sources", "", "Source filter (comma-separated node ids)")
		offline = flag.Bool("offline", false, "Show only RegionOffline events")
	)
	flag.Parse()

	bus, err := eventbus.NewJetStreamBus(*natsURL, *stream, 24*time.Hour)
	if err != nil {
		log.Fatalf("❌ Failed to connect to NATS: %v", err)
	}
	defer bus.Close()

	filter := eventbus.Filter{
		Types:   []string{eventbus.EventRegionChanged, eventbus.EventRegionOffline},
		Sources: parseStringList(*sources),
	}
	if *offline {
		filter.Types = []string{eventbus.EventRegionOffline}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sub, err := bus.Subscribe(ctx, filter, func(_ context.Context, ev *eventbus.Envelope) {
		printEvent(ev)
	})
	if err != nil {
		log.Fatalf("❌ Subscribe failed: %v", err)
	}
	defer sub.Unsubscribe()

	fmt.Fprintf(os.Stderr, "👀 Watching %s on %s (Ctrl+C to stop)\n", *stream, *natsURL)
	<-ctx.Done()
}

func printEvent(ev *eventbus.Envelope) {
	rec, err := eventbus.DecodeRegionEvent(ev)
	if err != nil {
		fmt.Printf("%s %-14s %s ⚠️ %v\n", ev.Timestamp.UTC().Format(timeFormat), ev.EventType, ev.Source, err)
		return
	}
	x, y := rec.Handle.Tile()
	status := "🟢"
	if !rec.Online {
		status = "🔴"
	}
	fmt.Printf("%s %-14s %s %s region=%s tile=(%d,%d) name=%q endpoint=%s\n",
		ev.Timestamp.UTC().Format(timeFormat), ev.EventType, ev.Source, status,
		rec.RegionID, x, y, rec.Name, rec.IPAndPort)
}

func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
