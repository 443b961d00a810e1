package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"

	"gardenperf.ai/internal/protocol"
	"gardenperf.ai/internal/session"
)

func main() {
	var (
		addr     = flag.String("url", "ws://localhost:8080/v1/conceal", "ws url")
		playerID = flag.Int64("player", 0, "player id")
	)
	flag.Parse()

	logger := log.New(os.Stderr, "[client] ", log.LstdFlags|log.Lmicroseconds)
	if *playerID <= 0 {
		logger.Fatalf("missing -player")
	}
	u, err := url.Parse(*addr)
	if err != nil {
		logger.Fatalf("url: %v", err)
	}
	q := u.Query()
	q.Set("player_id", strconv.FormatInt(*playerID, 10))
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	send := func(v any) error {
		b, err := protocol.EncodeRequest(v)
		if err != nil {
			return err
		}
		return conn.WriteMessage(websocket.BinaryMessage, b)
	}
	for _, v := range []any{protocol.LoginRequest{}, protocol.StatusRequest{}} {
		if err := send(v); err != nil {
			logger.Fatalf("send: %v", err)
		}
	}

	// Reader.
	done := make(chan struct{})
	go func() {
		defer close(done)
		var c session.Client
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			f, err := protocol.Decode(msg)
			if err != nil {
				logger.Printf("bad frame: %v", err)
				continue
			}
			text, ok, err := c.Render(f)
			if err != nil {
				logger.Printf("%s: %v", f.Name(), err)
				continue
			}
			if ok {
				fmt.Println(text)
			}
		}
	}()

	lines := make(chan string)
	go func() {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	for {
		select {
		case <-stop:
			_ = send(protocol.LogoutRequest{})
			return
		case <-done:
			return
		case line, ok := <-lines:
			if !ok {
				_ = send(protocol.LogoutRequest{})
				return
			}
			req, err := parseCommand(line)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				continue
			}
			if req == nil {
				continue
			}
			if err := send(req); err != nil {
				logger.Printf("send: %v", err)
				return
			}
		}
	}
}

const usage = "commands: concealed | revealed | conceal <id> | reveal <id> | observing | settings | set <name> <value> | status | login | logout"

// parseCommand maps a console line to a request. It returns nil for blank
// lines.
func parseCommand(line string) (any, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, nil
	}
	argID := func() (int64, error) {
		if len(fields) != 2 {
			return 0, fmt.Errorf("%s needs an entity id", fields[0])
		}
		id, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("bad entity id %q", fields[1])
		}
		return id, nil
	}
	switch strings.ToLower(fields[0]) {
	case "concealed":
		return protocol.ConcealedGridsRequest{}, nil
	case "revealed":
		return protocol.RevealedGridsRequest{}, nil
	case "conceal":
		id, err := argID()
		if err != nil {
			return nil, err
		}
		return protocol.ConcealRequest{EntityID: id}, nil
	case "reveal":
		id, err := argID()
		if err != nil {
			return nil, err
		}
		return protocol.RevealRequest{EntityID: id}, nil
	case "observing":
		return protocol.ObservingEntitiesRequest{}, nil
	case "settings":
		return protocol.SettingsRequest{}, nil
	case "set":
		if len(fields) != 3 {
			return nil, fmt.Errorf("set needs <name> <value>")
		}
		return protocol.ChangeSettingRequest{Name: fields[1], Value: fields[2]}, nil
	case "status":
		return protocol.StatusRequest{}, nil
	case "login":
		return protocol.LoginRequest{}, nil
	case "logout":
		return protocol.LogoutRequest{}, nil
	}
	return nil, fmt.Errorf("unknown command %q; %s", fields[0], usage)
}
