package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/park285/chess-session-server/internal/wsclient"
	"github.com/park285/chess-session-server/pkg/protocol"
)

// roomcheck drives two clients through create, join, a few moves, a dropped
// connection and a reconnect against a running chess-server.
func main() {
	wsURL := os.Getenv("CHESS_WS_URL")
	if wsURL == "" {
		wsURL = "ws://127.0.0.1:8080/ws"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	white := mustDial(ctx, wsURL, "roomcheck-white")
	defer white.Close()
	black := mustDial(ctx, wsURL, "roomcheck-black")
	defer black.Close()

	black.OnPush(func(env protocol.Envelope) {
		fmt.Printf("black <- %s %s\n", env.Type, string(env.Payload))
	})

	created, err := white.CreateRoom(ctx)
	if err != nil {
		log.Fatalf("createRoom: %v", err)
	}
	log.Printf("room %s created", created.RoomID)

	if _, err := black.JoinRoom(ctx, created.RoomID); err != nil {
		log.Fatalf("joinRoom: %v", err)
	}

	moves := []struct {
		c  *wsclient.Client
		mv string
	}{{white, "e4"}, {black, "e5"}, {white, "Nf3"}}
	for _, m := range moves {
		seq, err := m.c.SubmitMove(ctx, created.RoomID, m.mv)
		if err != nil {
			log.Fatalf("submitMove %s: %v", m.mv, err)
		}
		log.Printf("move %s accepted as %d", m.mv, seq)
	}

	white.Drop()
	time.Sleep(200 * time.Millisecond)

	again := mustDial(ctx, wsURL, "roomcheck-white")
	defer again.Close()
	snap, err := again.Reconnect(ctx, created.RoomID, created.SeatToken, 2)
	if err != nil {
		log.Fatalf("reconnect: %v", err)
	}
	log.Printf("reconnected: status=%s missed=%d", snap.Status, len(snap.Missed))

	if err := again.Resign(ctx, created.RoomID); err != nil {
		log.Fatalf("resign: %v", err)
	}
	log.Println("roomcheck ok")
}

func mustDial(ctx context.Context, url, name string) *wsclient.Client {
	c, err := wsclient.Dial(ctx, url)
	if err != nil {
		log.Fatalf("dial %s: %v", url, err)
	}
	if err := c.DeclareName(ctx, name); err != nil {
		log.Fatalf("declareName: %v", err)
	}
	return c
}
