package main

import (
	"bufio"
	"flag"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"

	"lootroom/internal/core/domain"
	"lootroom/internal/mirror"
	"lootroom/internal/protocol"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if err := run(logger); err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	addr := flag.String("addr", "127.0.0.1:8080", "host address")
	name := flag.String("name", "adventurer", "display name")
	flag.Parse()

	u := url.URL{Scheme: "ws", Host: *addr, Path: "/ws", RawQuery: "name=" + url.QueryEscape(*name)}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", u.String(), err)
	}
	defer conn.Close()

	// All writes funnel through one goroutine; the mirror's resync callback
	// and the command loop both enqueue here.
	outbound := make(chan protocol.Envelope, 16)
	go func() {
		for env := range outbound {
			if err := conn.WriteJSON(env); err != nil {
				logger.Error("write failed", "err", err)
				return
			}
		}
	}()
	send := func(env protocol.Envelope) {
		select {
		case outbound <- env:
		default:
			logger.Warn("outbound queue full, dropping request", "type", env.Type)
		}
	}

	m := mirror.New(func() {
		send(protocol.MustEnvelope(protocol.TypeRequestFullSync, struct{}{}))
	})

	go consume(m)

	readDone := make(chan error, 1)
	go func() {
		for {
			var env protocol.Envelope
			if err := conn.ReadJSON(&env); err != nil {
				readDone <- err
				return
			}
			if err := m.Handle(env); err != nil {
				logger.Warn("bad frame", "err", err)
			}
		}
	}()

	go commandLoop(m, send)

	err = <-readDone
	close(outbound)
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return nil
	}
	return err
}

// consume prints mirror events as they arrive: the presentation layer of
// this minimal peer.
func consume(m *mirror.Mirror) {
	for {
		select {
		case entries := <-m.Inventory():
			fmt.Printf("--- %s (v%d, %d entries) ---\n", m.GroupName(), m.Version(), len(entries))
			for _, e := range entries {
				owner := e.Owner
				if owner == "" {
					owner = "-"
				}
				fmt.Printf("  %-36s %-20s %-10s x%-4d owner=%s\n", e.ID, e.Name, e.Category, e.Quantity, owner)
			}
		case participants := <-m.Participants():
			fmt.Println("--- participants ---")
			for _, p := range participants {
				state := "offline"
				if p.Online {
					state = "online"
				}
				fmt.Printf("  %-36s %-16s %-7s %s\n", p.ConnectionID, p.DisplayName, p.Permission, state)
			}
		case msg := <-m.Messages():
			fmt.Println("* " + msg)
		}
	}
}

func commandLoop(m *mirror.Mirror, send func(protocol.Envelope)) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "add":
			// add <name> <category> <quantity>
			if len(fields) != 4 {
				fmt.Println("usage: add <name> <category> <quantity>")
				continue
			}
			cat, err := domain.ParseCategory(fields[2])
			if err != nil {
				fmt.Println(err)
				continue
			}
			qty, err := strconv.Atoi(fields[3])
			if err != nil || qty <= 0 {
				fmt.Println("quantity must be a positive integer")
				continue
			}
			env, err := protocol.NewEnvelope(protocol.TypeAddItem, protocol.AddItemRequest{
				Entry: domain.Entry{Name: fields[1], Category: cat, Quantity: qty},
			})
			if err != nil {
				fmt.Println(err)
				continue
			}
			send(env)
		case "set":
			// set <entry-id> <quantity>
			if len(fields) != 3 {
				fmt.Println("usage: set <entry-id> <quantity>")
				continue
			}
			qty, err := strconv.Atoi(fields[2])
			if err != nil {
				fmt.Println("quantity must be an integer")
				continue
			}
			send(protocol.MustEnvelope(protocol.TypeSetQuantity, protocol.SetQuantityRequest{EntryID: fields[1], Quantity: qty}))
		case "owner":
			if len(fields) != 3 {
				fmt.Println("usage: owner <entry-id> <owner>")
				continue
			}
			send(protocol.MustEnvelope(protocol.TypeSetOwner, protocol.SetOwnerRequest{EntryID: fields[1], Owner: fields[2]}))
		case "remove":
			if len(fields) != 2 {
				fmt.Println("usage: remove <entry-id>")
				continue
			}
			send(protocol.MustEnvelope(protocol.TypeRemoveItem, protocol.RemoveItemRequest{EntryID: fields[1]}))
		case "grant":
			// grant <connection-id> <viewer|editor|admin>
			if len(fields) != 3 {
				fmt.Println("usage: grant <connection-id> <permission>")
				continue
			}
			perm, err := domain.ParsePermission(fields[2])
			if err != nil {
				fmt.Println(err)
				continue
			}
			send(protocol.MustEnvelope(protocol.TypeSetUserPermission, protocol.SetUserPermissionRequest{TargetID: fields[1], Permission: perm}))
		case "sync":
			send(protocol.MustEnvelope(protocol.TypeRequestFullSync, struct{}{}))
		case "list":
			for _, e := range m.Entries() {
				fmt.Printf("  %-36s %-20s x%d\n", e.ID, e.Name, e.Quantity)
			}
		case "who":
			for _, p := range m.ParticipantsNow() {
				state := "offline"
				if p.Online {
					state = "online"
				}
				fmt.Printf("  %-36s %-16s %-7s %s\n", p.ConnectionID, p.DisplayName, p.Permission, state)
			}
		case "quit", "exit":
			return
		default:
			fmt.Println("commands: add set owner remove grant sync list who quit")
		}
	}
}
