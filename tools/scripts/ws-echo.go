// Package main provides a loopback realtime server for developing against
// the jobwire client without a live job-board backend.
//
// It speaks the v1 frame contract:
//   - accepts ?clientType=...&clientId=... handshakes
//   - acknowledges each session with a connected frame
//   - reflects sendMessage back to the sender as receiveMessage and
//     newMessageArrived, assigning a server message id and preserving the
//     client correlation id
package main

import (
	"context"
	crand "crypto/rand"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/oklog/ulid/v2"

	v1 "jobwire/shared/contracts/realtime/v1"
)

const (
	subprotocol  = "jobwire.realtime.v1"
	maxReadBytes = 1 << 16 // matches the client transport's frame cap
	writeTimeout = 5 * time.Second
)

var (
	idMu      sync.Mutex
	idEntropy = ulid.Monotonic(crand.Reader, 0)
)

func newID() string {
	idMu.Lock()
	defer idMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now().UTC()), idEntropy).String()
}

func main() {
	var (
		addr    = flag.String("addr", "127.0.0.1:4001", "listen address")
		path    = flag.String("path", "/ws", "websocket path")
		verbose = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	lvl := slog.LevelInfo
	if *verbose {
		lvl = slog.LevelDebug
	}
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))

	mux := http.NewServeMux()
	mux.HandleFunc(*path, func(w http.ResponseWriter, r *http.Request) {
		serveSession(log, w, r)
	})

	log.Info("echo.start", "addr", *addr, "path", *path)
	if err := http.ListenAndServe(*addr, mux); err != nil {
		fmt.Fprintf(os.Stderr, "ws-echo: %v\n", err)
		os.Exit(1)
	}
}

func serveSession(log *slog.Logger, w http.ResponseWriter, r *http.Request) {
	clientType := strings.TrimSpace(r.URL.Query().Get("clientType"))
	clientID := strings.TrimSpace(r.URL.Query().Get("clientId"))
	if clientType == "" || clientID == "" {
		http.Error(w, "missing clientType or clientId", http.StatusBadRequest)
		return
	}

	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   []string{subprotocol},
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		log.Info("echo.accept.fail", "err", err)
		return
	}
	defer c.Close(websocket.StatusNormalClosure, "bye")
	c.SetReadLimit(maxReadBytes)

	ctx := r.Context()
	sessionID := newID()

	log.Info("echo.session.open", "session", sessionID, "client_type", clientType, "client_id", clientID)

	if err := writeFrame(ctx, c, v1.EventConnected, v1.ConnectedPayload{SessionID: sessionID}); err != nil {
		log.Info("echo.connected.fail", "err", err)
		return
	}

	for {
		_, raw, err := c.Read(ctx)
		if err != nil {
			log.Info("echo.session.close", "session", sessionID, "err", err)
			return
		}

		var f v1.Frame
		if err := json.Unmarshal(raw, &f); err != nil {
			log.Info("echo.frame.malformed", "err", err)
			continue
		}
		if err := f.Validate(); err != nil {
			log.Info("echo.frame.invalid", "err", err)
			continue
		}

		switch f.Event {
		case v1.EventJoinChat:
			var p v1.JoinChatPayload
			if err := json.Unmarshal(f.Data, &p); err != nil {
				log.Info("echo.join.malformed", "err", err)
				continue
			}
			log.Debug("echo.join", "a", p.CounterpartAID, "b", p.CounterpartBID)

		case v1.EventSendMessage:
			var p v1.SendMessagePayload
			if err := json.Unmarshal(f.Data, &p); err != nil {
				log.Info("echo.send.malformed", "err", err)
				continue
			}

			msg := v1.MessagePayload{
				MessageID:      newID(),
				CorrelationID:  p.CorrelationID,
				SenderID:       p.SenderID,
				OwnerUserID:    p.OwnerUserID,
				OwnerCompanyID: p.OwnerCompanyID,
				Content:        p.Content,
				Timestamp:      time.Now().UTC(),
			}

			if err := writeFrame(ctx, c, v1.EventReceiveMessage, msg); err != nil {
				log.Info("echo.reflect.fail", "err", err)
				return
			}
			if err := writeFrame(ctx, c, v1.EventNewMessageArrived, msg); err != nil {
				log.Info("echo.reflect.fail", "err", err)
				return
			}

		default:
			log.Debug("echo.frame.ignored", "event", f.Event)
		}
	}
}

func writeFrame(ctx context.Context, c *websocket.Conn, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	raw, err := json.Marshal(v1.Frame{
		Event: event,
		ID:    newID(),
		TS:    time.Now().UTC(),
		Data:  data,
	})
	if err != nil {
		return err
	}

	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return c.Write(wctx, websocket.MessageText, raw)
}
