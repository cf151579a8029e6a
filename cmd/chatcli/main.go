package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/go-portfolio/chat-relay/internal/chat"
	"github.com/go-portfolio/chat-relay/internal/chatclient"
)

func main() {
	server := flag.String("server", "http://localhost:3000", "адрес сервера чата")
	name := flag.String("name", "", "отображаемое имя")
	avatar := flag.String("avatar", "", "ссылка на аватар (по умолчанию — сгенерированный)")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		With().Timestamp().Logger()

	if strings.TrimSpace(*name) == "" {
		log.Fatal().Msg("-name is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	client, err := chatclient.Dial(dialCtx, *server)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Msg("connect")
	}
	defer client.Close()

	// Вход, затем история до курсора снимка; живые сообщения идут после неё без повторов
	snap, history, err := client.JoinWithHistory(ctx, *name, *avatar)
	if snap == nil {
		log.Fatal().Err(err).Msg("join")
	}
	if err != nil {
		log.Warn().Err(err).Msg("history unavailable")
	}
	for _, m := range history {
		printMessage(m)
	}
	printEvent(chatclient.Event{Name: chat.EventPresenceSnapshot, Snapshot: snap})

	// Строки stdin — сообщения
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			if err := client.Send(line); err != nil {
				log.Error().Err(err).Msg("send")
				stop()
				return
			}
		}
		stop()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-client.Events():
			if !ok {
				if err := client.Err(); err != nil {
					log.Error().Err(err).Msg("connection lost")
				}
				return
			}
			printEvent(ev)
		}
	}
}

func printEvent(ev chatclient.Event) {
	switch {
	case ev.Message != nil:
		printMessage(*ev.Message)
	case ev.Presence != nil:
		fmt.Printf("* %s (%d online)\n", ev.Presence.Text, ev.Presence.Count)
	case ev.Snapshot != nil:
		names := make([]string, 0, len(ev.Snapshot.Users))
		for _, u := range ev.Snapshot.Users {
			names = append(names, u.DisplayName)
		}
		fmt.Printf("* online (%d): %s\n", ev.Snapshot.Count, strings.Join(names, ", "))
	case ev.Error != nil:
		fmt.Printf("! %s: %s\n", ev.Error.Code, ev.Error.Text)
	}
}

func printMessage(m chat.Message) {
	fmt.Printf("[%s] %s: %s\n", m.Timestamp.Local().Format("15:04:05"), m.Sender, m.Body)
}
