package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/park285/Cheese-Arena/internal/arenaclient"
	"github.com/park285/Cheese-Arena/pkg/matchwire"
)

func main() {
	baseURL := os.Getenv("ARENA_HTTP_URL")
	wsURL := os.Getenv("ARENA_WS_URL")
	if baseURL == "" {
		log.Fatal("ARENA_HTTP_URL is required")
	}

	client := arenaclient.NewClient(baseURL, arenaclient.WithTimeout(8*time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.Health(ctx); err != nil {
		log.Fatalf("/healthz error: %v", err)
	}
	guest, err := client.Guest(ctx, "arenacheck")
	if err != nil {
		log.Fatalf("/guest error: %v", err)
	}
	m, err := client.CreateMatch(ctx, guest.Token, "random")
	if err != nil {
		log.Fatalf("/matches error: %v", err)
	}
	log.Printf("match ok: id=%s seat=%s participant=%s", m.ID, m.Seat, guest.ParticipantID)

	if wsURL == "" {
		log.Println("ARENA_WS_URL not set; skipping WS check")
		return
	}

	ws := arenaclient.NewSocket(wsURL, guest.Token, 3)
	ws.OnStateChange(func(state arenaclient.SocketState) {
		log.Printf("WS state: %s", state)
	})
	ws.OnFrame(func(f matchwire.Frame) {
		fmt.Printf("WS frame event=%s data=%s\n", f.Event, string(f.Data))
	})

	cctx, ccancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer ccancel()
	if err := ws.Connect(cctx); err != nil {
		log.Printf("WS connect error: %v", err)
		return
	}
	if err := ws.Send(cctx, matchwire.EventState, matchwire.SessionRef{SessionID: m.ID}); err != nil {
		log.Printf("WS send error: %v", err)
	}

	// Observe for a short window
	t := time.NewTimer(3 * time.Second)
	<-t.C
	_ = ws.Close(context.Background())
}
