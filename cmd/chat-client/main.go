package main

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/eternisai/enchanted-client/internal/config"
	"github.com/eternisai/enchanted-client/internal/conversation"
	"github.com/eternisai/enchanted-client/internal/history"
	"github.com/eternisai/enchanted-client/internal/logger"
	"github.com/eternisai/enchanted-client/internal/metrics"
	"github.com/eternisai/enchanted-client/internal/transport"
)

func main() {
	config.LoadConfig()
	cfg := config.AppConfig

	log := logger.New(logger.FromConfig(cfg.LogLevel, cfg.LogFormat))
	log.Info("starting chat client", "instance_id", logger.GetInstanceID())

	var m *metrics.Metrics
	if cfg.MetricsAddr != "" {
		m = metrics.New(prometheus.DefaultRegisterer)
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			log.Info("metrics endpoint listening", "addr", cfg.MetricsAddr)
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				log.Error("metrics endpoint failed", "error", err)
			}
		}()
	}

	historyClient := history.NewClient(
		cfg.GraphQLURL,
		cfg.AuthToken,
		cfg.HistoryPageSize,
		time.Duration(cfg.HistoryTimeoutSeconds)*time.Second,
	)

	dialer := conversation.DialerFunc(func(ctx context.Context, addr transport.Address, cb transport.Callbacks) (conversation.Socket, error) {
		return transport.Dial(ctx, addr, cb, log)
	})

	ctrl := conversation.NewController(conversation.Options{
		SocketBaseURL: cfg.SocketBaseURL,
		DocumentID:    cfg.DocumentID,
		CorpusID:      cfg.CorpusID,
		AuthToken:     cfg.AuthToken,
		SendDebounce:  cfg.SendDebounce,
		Dialer:        dialer,
		History:       historyClient,
		Metrics:       m,
		Logger:        log,
		OnConnectionChange: func(ready bool) {
			if ready {
				fmt.Println("* connected")
			} else {
				fmt.Println("* disconnected (use /reconnect)")
			}
		},
	})
	defer ctrl.Dispose()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctrl.StartNewConversation(ctx)

	go func() {
		<-ctx.Done()
		ctrl.Dispose()
		os.Exit(0)
	}()

	repl(ctx, ctrl)
}

func repl(ctx context.Context, ctrl *conversation.Controller) {
	fmt.Println("commands: /open <id>, /new, /list, /sources <message-id>, /approve, /reject, /dismiss, /reconnect, /quit")

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 64*1024), 64*1024)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch {
		case line == "/quit":
			return

		case line == "/new":
			ctrl.StartNewConversation(ctx)

		case strings.HasPrefix(line, "/open "):
			ctrl.SelectConversation(ctx, strings.TrimSpace(strings.TrimPrefix(line, "/open ")))

		case line == "/list":
			printMessages(ctrl)

		case strings.HasPrefix(line, "/sources "):
			printSources(ctrl, strings.TrimSpace(strings.TrimPrefix(line, "/sources ")))

		case line == "/approve":
			if err := ctrl.SendApprovalDecision(true); err != nil {
				fmt.Println("!", err)
			}

		case line == "/reject":
			if err := ctrl.SendApprovalDecision(false); err != nil {
				fmt.Println("!", err)
			}

		case line == "/dismiss":
			ctrl.DismissApproval()

		case line == "/reopen":
			ctrl.ReopenApproval()

		case line == "/reconnect":
			ctrl.Reconnect(ctx)

		case strings.HasPrefix(line, "/"):
			fmt.Println("! unknown command:", line)

		default:
			if err := ctrl.SendUserMessage(line); err != nil {
				fmt.Println("!", err)
			}
		}
	}
}

func printMessages(ctrl *conversation.Controller) {
	msgs := ctrl.Messages()
	if len(msgs) == 0 {
		fmt.Println("(no messages)")
		return
	}
	for _, msg := range msgs {
		marker := " "
		switch msg.Lifecycle {
		case conversation.LifecycleInProgress:
			marker = "~"
		case conversation.LifecycleAwaitingApproval:
			marker = "?"
		}
		fmt.Printf("[%s]%s %s: %s\n", msg.ID, marker, msg.Role, msg.Content)

		for _, entry := range msg.Timeline {
			switch entry.Type {
			case conversation.EntryToolCall:
				fmt.Printf("      -> %s(%s)\n", entry.Tool, entry.Args)
			case conversation.EntryToolResult:
				fmt.Printf("      <- %s\n", entry.Tool)
			default:
				fmt.Printf("      .. %s\n", entry.Text)
			}
		}
		if msg.PendingToolCall != nil {
			fmt.Printf("      awaiting approval: %s (/approve or /reject)\n", msg.PendingToolCall.Name)
		}
	}

	if pending := ctrl.PendingApproval(); pending != nil && ctrl.ApprovalVisible() {
		fmt.Printf("pending approval on %s: %s\n", pending.MessageID, pending.ToolCall.Name)
	}
}

func printSources(ctrl *conversation.Controller, messageID string) {
	stored, ok := ctrl.StoredSources(messageID)
	if !ok {
		fmt.Println("(no stored entry for", messageID+")")
		return
	}
	fmt.Printf("%s: %q\n", messageID, stored.Content)
	for _, c := range stored.Citations {
		fmt.Printf("  [%s] p.%d %s (annotation %s)\n", c.ID, c.Page, c.Label, c.AnnotationID)
	}
}
