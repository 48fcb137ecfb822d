package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/annel0/tower-stack/internal/eventbus"
	"github.com/annel0/tower-stack/internal/health"
	"github.com/annel0/tower-stack/internal/protocol"
)

const (
	defaultNATS   = "nats://127.0.0.1:4222"
	defaultHealth = "localhost:9090"
)

func main() {
	var (
		command    = flag.String("cmd", "tail", "Command: tail, stats, health")
		natsURL    = flag.String("nats", defaultNATS, "NATS URL")
		stream     = flag.String("stream", "TOWER_EVENTS", "JetStream stream")
		healthAddr = flag.String("health", defaultHealth, "gRPC health address")
		eventTypes = flag.String("types", "", "Event types filter (comma-separated)")
		limit      = flag.Int("limit", 0, "Stop after N events (0 — until Ctrl+C)")
		duration   = flag.Duration("for", 30*time.Second, "stats: collection window")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch *command {
	case "tail":
		err = tailEvents(ctx, *natsURL, *stream, parseStringList(*eventTypes), *limit)
	case "stats":
		ctx, cancel := context.WithTimeout(ctx, *duration)
		defer cancel()
		err = showStats(ctx, *natsURL, *stream, parseStringList(*eventTypes))
	case "health":
		err = checkHealth(ctx, *healthAddr)
	default:
		fmt.Printf("❌ Unknown command: %s\n", *command)
		fmt.Println("Available commands: tail, stats, health")
		os.Exit(1)
	}
	if err != nil {
		log.Fatalf("❌ %s failed: %v", *command, err)
	}
}

// subscribe подписывается на события стрима и вызывает h для каждого.
func subscribe(ctx context.Context, url, stream string, types []string, h eventbus.Handler) (func(), error) {
	bus, err := eventbus.NewJetStreamBus(url, stream, 0)
	if err != nil {
		return nil, err
	}
	sub, err := bus.Subscribe(ctx, eventbus.Filter{Types: types}, h)
	if err != nil {
		bus.Close()
		return nil, err
	}
	return func() {
		sub.Unsubscribe()
		bus.Close()
	}, nil
}

// tailEvents выводит события в реальном времени
func tailEvents(ctx context.Context, url, stream string, types []string, limit int) error {
	fmt.Printf("🎬 Tailing %s (types: %v, limit: %d)\n", stream, types, limit)

	codec, err := protocol.NewCodec(protocol.FormatJSON, 0)
	if err != nil {
		return err
	}
	defer codec.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := make(chan *eventbus.Envelope, 64)
	closeSub, err := subscribe(ctx, url, stream, types, func(_ context.Context, ev *eventbus.Envelope) {
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return err
	}
	defer closeSub()

	count := 0
	for {
		select {
		case <-ctx.Done():
			fmt.Printf("\n📊 Total events: %d\n", count)
			return nil
		case ev := <-events:
			printEvent(codec, ev)
			count++
			if limit > 0 && count >= limit {
				cancel()
			}
		}
	}
}

// showStats считает события по типам за окно наблюдения
func showStats(ctx context.Context, url, stream string, types []string) error {
	fmt.Println("📊 Event statistics (collecting until timeout or Ctrl+C)")

	counts := make(chan string, 64)
	closeSub, err := subscribe(ctx, url, stream, types, func(_ context.Context, ev *eventbus.Envelope) {
		select {
		case counts <- ev.EventType:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return err
	}
	defer closeSub()

	byType := map[string]int{}
	total := 0
collect:
	for {
		select {
		case t := <-counts:
			byType[t]++
			total++
		case <-ctx.Done():
			break collect
		}
	}

	keys := make([]string, 0, len(byType))
	for k := range byType {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Printf("Total events: %d\n", total)
	fmt.Println("\nBy event type:")
	for _, k := range keys {
		fmt.Printf("  %s: %d events\n", k, byType[k])
	}
	return nil
}

// checkHealth опрашивает gRPC health сервиса сессии
func checkHealth(ctx context.Context, addr string) error {
	conn, err := grpc.Dial(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: health.ServiceName})
	if err != nil {
		return err
	}
	fmt.Printf("%s: %s\n", health.ServiceName, resp.GetStatus())
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("session is %s", resp.GetStatus())
	}
	return nil
}

// printEvent выводит событие в читаемом формате
func printEvent(codec *protocol.Codec, ev *eventbus.Envelope) {
	fmt.Printf("[%s] %-12s round=%s prio=%d %s\n",
		ev.Timestamp.Local().Format("15:04:05.000"),
		ev.EventType,
		shortID(ev.CorrelationID),
		ev.Priority,
		ev.ID)

	doc, err := codec.Decode(ev.Payload)
	if err != nil {
		fmt.Printf("  ⚠️ payload: %v\n", err)
		return
	}
	delete(doc, "type")
	delete(doc, "round")
	body, _ := json.Marshal(doc)
	fmt.Printf("  %s\n", body)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// parseStringList парсит строку с разделителями-запятыми
func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
