package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"gardenperf.ai/internal/eventbus"
)

func stateCmd(args []string) {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)
	adminRequest(http.MethodGet, *baseURL, "/admin/v1/state")
}

func toggleCmd(action string, args []string) {
	fs := flag.NewFlagSet(action, flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)
	adminRequest(http.MethodPost, *baseURL, "/admin/v1/"+action)
}

func adminRequest(method, baseURL, path string) {
	u := strings.TrimRight(strings.TrimSpace(baseURL), "/") + path
	req, _ := http.NewRequest(method, u, nil)
	cl := &http.Client{Timeout: 5 * time.Second}
	resp, err := cl.Do(req)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Println(strings.TrimSpace(string(b)))
	if resp.StatusCode/100 != 2 {
		os.Exit(1)
	}
}

// tailCmd follows the transition stream on Kafka.
func tailCmd(args []string) {
	fs := flag.NewFlagSet("tail", flag.ExitOnError)
	brokers := fs.String("brokers", os.Getenv("GP_KAFKA_BROKERS"), "comma separated kafka brokers")
	topic := fs.String("topic", eventbus.TopicTransitions, "topic to follow")
	group := fs.String("group", "", "consumer group (optional)")
	_ = fs.Parse(args)

	if strings.TrimSpace(*brokers) == "" {
		fmt.Fprintln(os.Stderr, "missing -brokers")
		os.Exit(2)
	}
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := log.New(os.Stderr, "[admin] ", log.LstdFlags)
	err := eventbus.Subscribe(ctx, strings.Split(*brokers, ","), *topic, *group, logger, func(ev eventbus.Event) {
		fmt.Printf("%s %s %s %s\n", ev.Timestamp.Format(time.RFC3339), ev.WorldID, ev.EventType, string(ev.Payload))
	})
	if err != nil {
		logger.Fatalf("%v", err)
	}
}
