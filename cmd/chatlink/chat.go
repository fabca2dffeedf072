package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"chatlink/internal/audio"
	"chatlink/internal/config"
	"chatlink/internal/domain"
	"chatlink/internal/session"
	"chatlink/internal/transport"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var (
	remoteStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	localStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	noticeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Italic(true)
	timeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Connect and chat interactively",
		RunE:  runChat,
	}
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	logger = newLogger(cfg.General.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	recorder := audio.NewExecRecorder(audio.ExecRecorderConfig{
		Argv:   cfg.Audio.RecordCommand,
		Logger: logger,
	})

	ctrl := session.New(session.Config{
		Transport:         transportOptions(cfg),
		SenderName:        cfg.Chat.Sender,
		AudioArtifactPath: cfg.Audio.ArtifactPath,
		Recorder:          recorder,
		OnAppend:          renderMessage,
		Logger:            logger,
	})

	fmt.Printf("Connecting to %s ...\n", cfg.Server.Endpoint)
	if err := ctrl.Connect(ctx); err != nil {
		logger.Warn("initial connect failed, retrying in background", "err", err)
	}
	defer ctrl.Disconnect()

	fmt.Println("Type a message and press Enter. Commands: /rec /send /stop /submit /status /quit")

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if done := handleLine(ctx, ctrl, line); done {
				return nil
			}
		}
	}
}

// handleLine executes one REPL line; returns true to quit.
func handleLine(ctx context.Context, ctrl *session.Controller, line string) bool {
	switch line {
	case "/quit", "/exit", "/q":
		return true
	case "/status":
		fmt.Printf("connection: %s  audio: %s\n", ctrl.State(), ctrl.Audio().Status())
		for _, line := range ctrl.Stats() {
			fmt.Println("  " + line)
		}
	case "/rec":
		if err := ctrl.Audio().Start(ctx); err != nil {
			fmt.Println(noticeStyle.Render("cannot record: " + err.Error()))
		} else {
			fmt.Println(noticeStyle.Render("recording... /send to stop and submit, /stop to hold"))
		}
	case "/stop":
		if err := ctrl.Audio().Stop(ctx); err != nil {
			fmt.Println(noticeStyle.Render("stop: " + err.Error()))
		} else {
			fmt.Println(noticeStyle.Render("recording stopped; /submit to send, /rec to discard and re-record"))
		}
	case "/send":
		// Press-and-hold release path: stop, then submit, with the
		// finalized artifact as the checkpoint between them.
		if err := ctrl.Audio().StopAndSubmit(ctx); err != nil {
			fmt.Println(noticeStyle.Render("voice message failed: " + err.Error()))
		}
	case "/submit":
		if err := ctrl.Audio().Submit(ctx); err != nil {
			fmt.Println(noticeStyle.Render("submit: " + err.Error()))
		}
	default:
		if _, err := ctrl.SendText(line); err != nil {
			fmt.Println(noticeStyle.Render("not delivered: " + err.Error()))
		}
	}
	return false
}

// renderMessage is the log's append hook: one line per message, in
// insertion order.
func renderMessage(msg domain.Message) {
	ts := timeStyle.Render(msg.OriginatedAt.Local().Format("15:04:05"))
	switch msg.Body.Kind {
	case domain.BodySystemNotice:
		fmt.Printf("%s %s\n", ts, noticeStyle.Render("* "+msg.Body.Content))
	case domain.BodyImage:
		fmt.Printf("%s %s %s\n", ts, senderLabel(msg), noticeStyle.Render(fmt.Sprintf("[image, %d bytes base64]", len(msg.Body.Content))))
	default:
		fmt.Printf("%s %s %s\n", ts, senderLabel(msg), msg.Body.Content)
	}
}

func senderLabel(msg domain.Message) string {
	if msg.Origin == domain.OriginLocal {
		return localStyle.Render(msg.Sender + ">")
	}
	return remoteStyle.Render(msg.Sender + ">")
}

func transportOptions(cfg *config.Config) transport.Options {
	return transport.Options{
		Endpoint:             cfg.Server.Endpoint,
		Path:                 cfg.Server.Path,
		Transports:           cfg.Server.Transports,
		ReconnectDelay:       time.Duration(cfg.Server.ReconnectDelayMs) * time.Millisecond,
		MaxReconnectAttempts: cfg.Server.MaxReconnectAttempts,
		HandshakeTimeout:     time.Duration(cfg.Server.HandshakeTimeoutMs) * time.Millisecond,
		Logger:               logger,
	}
}
