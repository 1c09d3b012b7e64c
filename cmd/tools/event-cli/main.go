package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/annel0/shard-realms/internal/eventbus"
	nats "github.com/nats-io/nats.go"
)

const (
	defaultNATSURL = "nats://127.0.0.1:4222"
	defaultStream  = "GAME_EVENTS"
	timeFormat     = "2006-01-02T15:04:05Z"
)

func main() {
	var (
		natsURL    = flag.String("nats", defaultNATSURL, "NATS server URL")
		stream     = flag.String("stream", defaultStream, "JetStream stream name")
		command    = flag.String("cmd", "tail", "Command: tail, stats, types")
		eventTypes = flag.String("types", "", "Event types filter (comma-separated)")
		worldID    = flag.String("world", "", "World ID filter")
		since      = flag.String("since", "1h", "Time duration since now (e.g., 1h, 30m) or RFC3339 time")
		limit      = flag.Int("limit", 100, "Maximum number of events (tail without -follow)")
		follow     = flag.Bool("follow", false, "Follow new events (like tail -f)")
	)
	flag.Parse()

	nc, err := nats.Connect(*natsURL, nats.Name("shard-realms-event-cli"))
	if err != nil {
		log.Fatalf("❌ Failed to connect to NATS: %v", err)
	}
	defer nc.Close()

	js, err := nc.JetStream()
	if err != nil {
		log.Fatalf("❌ JetStream unavailable: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startTime, err := parseSinceTime(*since, time.Now())
	if err != nil {
		log.Fatalf("❌ Invalid -since: %v", err)
	}
	filter := eventFilter{Types: parseStringList(*eventTypes), WorldID: *worldID}

	switch *command {
	case "tail":
		err = tailEvents(ctx, js, filter, startTime, *limit, *follow)
	case "stats":
		err = showStats(ctx, js, filter, startTime)
	case "types":
		err = showTypes(js, *stream)
	default:
		fmt.Printf("❌ Unknown command: %s\n", *command)
		fmt.Println("Available commands: tail, stats, types")
		os.Exit(1)
	}
	if err != nil {
		log.Fatalf("❌ %s failed: %v", *command, err)
	}
}

// subscribe эфемерный упорядоченный consumer с начала startTime
func subscribe(js nats.JetStreamContext, filter eventFilter, startTime time.Time) (*nats.Subscription, error) {
	subject := "events.>"
	if len(filter.Types) == 1 {
		subject = eventbus.Subject(filter.Types[0])
	}
	return js.SubscribeSync(subject, nats.OrderedConsumer(), nats.StartTime(startTime))
}

// tailEvents выводит события начиная с startTime
func tailEvents(ctx context.Context, js nats.JetStreamContext, filter eventFilter, startTime time.Time, limit int, follow bool) error {
	fmt.Printf("🎬 Tailing events since %s (limit: %d, follow: %v)\n", startTime.UTC().Format(timeFormat), limit, follow)

	sub, err := subscribe(js, filter, startTime)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	eventCount := 0
	for follow || eventCount < limit {
		ev, err := next(ctx, sub, follow)
		if err != nil {
			if errors.Is(err, errDrained) || errors.Is(err, context.Canceled) {
				break
			}
			return err
		}
		if ev == nil || !filter.match(ev) {
			continue
		}
		printEvent(ev)
		eventCount++
	}

	fmt.Printf("\n📊 Total events: %d\n", eventCount)
	return nil
}

// showStats количество событий по типам с начала startTime
func showStats(ctx context.Context, js nats.JetStreamContext, filter eventFilter, startTime time.Time) error {
	fmt.Println("📊 Event statistics")

	sub, err := subscribe(js, filter, startTime)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	counts := make(map[string]int)
	total := 0
	for {
		ev, err := next(ctx, sub, false)
		if err != nil {
			if errors.Is(err, errDrained) || errors.Is(err, context.Canceled) {
				break
			}
			return err
		}
		if ev == nil || !filter.match(ev) {
			continue
		}
		counts[ev.EventType]++
		total++
	}

	fmt.Printf("Period: %s - now\n", startTime.UTC().Format(timeFormat))
	fmt.Printf("Total events: %d\n", total)
	fmt.Println("\nBy event type:")
	for _, t := range sortedKeys(counts) {
		fmt.Printf("  %s: %d events\n", t, counts[t])
	}
	return nil
}

// showTypes число сообщений в стриме по subject'ам событий
func showTypes(js nats.JetStreamContext, stream string) error {
	fmt.Println("📋 Event types in stream " + stream)

	info, err := js.StreamInfo(stream, &nats.StreamInfoRequest{SubjectsFilter: "events.>"})
	if err != nil {
		return err
	}
	for _, subject := range sortedKeys(info.State.Subjects) {
		fmt.Printf("  %s: %d\n", subject, info.State.Subjects[subject])
	}
	fmt.Printf("\nFirst seen: %s\n", info.State.FirstTime.UTC().Format(timeFormat))
	fmt.Printf("Last seen:  %s\n", info.State.LastTime.UTC().Format(timeFormat))
	return nil
}

var errDrained = errors.New("no more events")

// next следующее событие. Без follow пауза в 2 секунды означает конец истории.
// Битые сообщения возвращаются как (nil, nil).
func next(ctx context.Context, sub *nats.Subscription, follow bool) (*eventbus.Envelope, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		msg, err := sub.NextMsg(2 * time.Second)
		if errors.Is(err, nats.ErrTimeout) {
			if follow {
				continue
			}
			return nil, errDrained
		}
		if err != nil {
			return nil, err
		}

		var ev eventbus.Envelope
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			return nil, nil
		}
		return &ev, nil
	}
}

// printEvent выводит событие в читаемом формате
func printEvent(ev *eventbus.Envelope) {
	fmt.Printf("[%s] %s [%s] %s\n",
		ev.Timestamp.Local().Format("15:04:05"),
		ev.Source,
		ev.EventType,
		ev.ID)
	if world := ev.Metadata[eventbus.MetaWorldID]; world != "" {
		fmt.Printf("  World: %s\n", world)
	}
	if len(ev.Payload) > 0 && ev.EventType != eventbus.TypeWorldGrid {
		fmt.Printf("  %s\n", ev.Payload)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
