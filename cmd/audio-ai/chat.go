package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"
)

const defaultChatMessage = "介绍UCloud"

// ChatCmd sends one message and prints the reply
type ChatCmd struct {
	Message      []string `arg:"" optional:"" help:"Message to send"`
	SystemPrompt string   `name:"system-prompt" help:"Override the configured system prompt"`
}

func (cmd *ChatCmd) Run(g *Globals) error {
	a, err := g.setup()
	if err != nil {
		return err
	}
	defer a.writeMetrics(g)

	client, err := a.chatClient()
	if err != nil {
		return fmt.Errorf("failed to create chat client: %w", err)
	}

	message := strings.Join(cmd.Message, " ")
	if strings.TrimSpace(message) == "" {
		message = defaultChatMessage
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startTime := time.Now()
	reply, err := client.Complete(ctx, cmd.SystemPrompt, nil, message)
	if err != nil {
		return err
	}

	fmt.Println(reply)
	a.logger.Debug("Chat completed", "elapsed", time.Since(startTime))
	return nil
}
