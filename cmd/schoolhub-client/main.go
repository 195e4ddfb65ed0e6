package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/katatrina/schoolhub-BE/internal/client"
	"github.com/katatrina/schoolhub-BE/internal/notification"
	"github.com/katatrina/schoolhub-BE/internal/util"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	configPath := flag.String("config", "./client.env", "path to the client env file")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	config, err := util.LoadClientConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load client config 😣")
	}
	if config.LoginEmail == "" || config.LoginPassword == "" {
		log.Fatal().Msg("LOGIN_EMAIL and LOGIN_PASSWORD are required 😣")
	}

	c, err := client.New(config, client.OnFeedChange(render))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create client 😣")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	loginCtx, cancel := context.WithTimeout(ctx, config.RequestTimeout)
	s, err := c.Login(loginCtx, config.LoginEmail, config.LoginPassword)
	cancel()
	if err != nil {
		stop()
		<-done
		log.Fatal().Err(err).Msg("failed to sign in 😣")
	}
	log.Info().Str("user_id", s.UserID).Str("role", string(s.Role)).Msg("signed in ✅")

	if err := <-done; err != nil {
		log.Error().Err(err).Msg("client stopped with error")
	}
}

// render prints the merged feed, newest first.
func render(feed []notification.Notification) {
	var b strings.Builder
	unread := 0
	for _, n := range feed {
		if !n.IsRead {
			unread++
		}
	}

	fmt.Fprintf(&b, "\n── %s notifications, %s unread ──\n", humanize.Comma(int64(len(feed))), humanize.Comma(int64(unread)))
	for _, n := range feed {
		marker := " "
		if !n.IsRead {
			marker = "•"
		}
		fmt.Fprintf(&b, "%s [%-6s] %-40s %s\n", marker, n.Priority, util.TruncateContent(n.Title, 40), humanize.RelTime(n.CreatedAt, time.Now(), "ago", "from now"))
	}
	fmt.Print(b.String())
}
