package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/capitalize-ai/assistant-chat/internal/chat"
	"github.com/capitalize-ai/assistant-chat/internal/config"
	"github.com/capitalize-ai/assistant-chat/internal/model"
)

func newAskCmd(cfg *config.ClientConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask one question and print the answer as it streams",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := newClientLogger(cfg)
			if err != nil {
				return fmt.Errorf("create logger: %w", err)
			}
			defer log.Sync()

			printer := &answerPrinter{out: cmd.OutOrStdout()}
			opts := controllerOptions(cfg, log)
			opts.OnChange = printer.update
			ctrl := chat.NewController(opts)

			err = ctrl.SendMessage(cmd.Context(), strings.Join(args, " "))
			printer.finish(ctrl.Snapshot())

			var chatErr *chat.ChatError
			if errors.As(err, &chatErr) {
				return fmt.Errorf("%s (%s)", chatErr.Message, chatErr.Kind)
			}
			return err
		},
	}
}

// answerPrinter writes the growing assistant answer to out, printing only the
// part not yet written.
type answerPrinter struct {
	mu      sync.Mutex
	out     io.Writer
	version uint64
	printed string
}

func (p *answerPrinter) update(snap chat.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if snap.Version <= p.version {
		return
	}
	p.version = snap.Version
	p.write(snap)
}

func (p *answerPrinter) finish(snap chat.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.write(snap)
	if p.printed == "" {
		return
	}
	fmt.Fprintln(p.out)
	if msg, ok := lastAssistant(snap); ok {
		for _, s := range msg.Sources {
			fmt.Fprintf(p.out, "  source: %s %s\n", s.Title, s.URL)
		}
	}
}

func (p *answerPrinter) write(snap chat.Snapshot) {
	msg, ok := lastAssistant(snap)
	if !ok || msg.IsError() {
		return
	}
	text := msg.Text()
	if !strings.HasPrefix(text, p.printed) {
		return
	}
	io.WriteString(p.out, text[len(p.printed):])
	p.printed = text
}

func lastAssistant(snap chat.Snapshot) (chat.Message, bool) {
	for i := len(snap.Messages) - 1; i >= 0; i-- {
		if snap.Messages[i].Role == model.RoleAssistant {
			return snap.Messages[i], true
		}
	}
	return chat.Message{}, false
}
