package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"polyaid/internal/domain"
	"polyaid/internal/usecase"
)

const helpText = `Commands:
  /key <api key>   save the API key for this provider
  /delkey          delete the stored API key
  /status          show whether a key is stored
  /quit            exit`

type session struct {
	chat     *usecase.ChatController
	settings *usecase.SettingsController
	out      io.Writer

	// shown counts messages already written to out.
	shown int

	title     *color.Color
	prompt    *color.Color
	assistant *color.Color
	failure   *color.Color
	info      *color.Color
}

func newSession(chat *usecase.ChatController, settings *usecase.SettingsController, out io.Writer) *session {
	return &session{
		chat:      chat,
		settings:  settings,
		out:       out,
		title:     color.New(color.FgCyan, color.Bold),
		prompt:    color.New(color.FgGreen),
		assistant: color.New(color.FgMagenta),
		failure:   color.New(color.FgRed),
		info:      color.New(color.FgYellow),
	}
}

// run reads lines from in until EOF, /quit, or ctx is done.
func (s *session) run(ctx context.Context, in io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.title.Fprintf(s.out, "polyaid: chatting with %s\n", s.chat.ProviderName())
	if !s.settings.IsKeySaved() {
		s.info.Fprintln(s.out, "No API key stored yet. Use /key <api key> to add one.")
	}
	s.info.Fprintln(s.out, "Type /help for commands.")

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		s.prompt.Fprint(s.out, "> ")
		select {
		case <-ctx.Done():
			fmt.Fprintln(s.out)
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				fmt.Fprintln(s.out)
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			if quit := s.handle(ctx, line); quit {
				return nil
			}
		}
	}
}

// handle processes one input line and reports whether the session should end.
func (s *session) handle(ctx context.Context, line string) bool {
	trimmed := strings.TrimSpace(line)
	switch {
	case trimmed == "":
		return false
	case trimmed == "/quit" || trimmed == "/exit":
		return true
	case trimmed == "/help":
		s.info.Fprintln(s.out, helpText)
	case trimmed == "/status":
		if s.settings.IsKeySaved() {
			s.info.Fprintln(s.out, "An API key is stored.")
		} else {
			s.info.Fprintln(s.out, "No API key stored.")
		}
	case trimmed == "/key" || strings.HasPrefix(trimmed, "/key "):
		key := strings.TrimSpace(strings.TrimPrefix(trimmed, "/key"))
		if key == "" {
			s.failure.Fprintln(s.out, "usage: /key <api key>")
			return false
		}
		s.settings.SetKeyInput(key)
		s.settings.SaveAPIKey(ctx)
		s.printFeedback()
	case trimmed == "/delkey":
		s.settings.DeleteAPIKey(ctx)
		s.printFeedback()
	case strings.HasPrefix(trimmed, "/"):
		s.failure.Fprintf(s.out, "unknown command %s (try /help)\n", trimmed)
	default:
		s.send(ctx, line)
	}
	return false
}

func (s *session) send(ctx context.Context, text string) {
	if err := s.chat.Send(ctx, text); err != nil {
		if errors.Is(err, usecase.ErrBusy) {
			s.failure.Fprintln(s.out, "still waiting for the previous reply")
			return
		}
		s.failure.Fprintf(s.out, "send failed: %v\n", err)
		return
	}
	s.chat.Wait()
	s.render()
}

// render writes messages appended since the last call. User turns are
// skipped because the terminal already echoed them.
func (s *session) render() {
	msgs := s.chat.Messages()
	for _, m := range msgs[s.shown:] {
		switch m.Role {
		case domain.RoleAssistant:
			s.assistant.Fprintf(s.out, "%s: ", s.chat.ProviderName())
			fmt.Fprintln(s.out, m.Content)
		case domain.RoleSystem:
			s.failure.Fprintln(s.out, m.Content)
		}
	}
	s.shown = len(msgs)
}

func (s *session) printFeedback() {
	msg := s.settings.Feedback()
	if msg == "" {
		return
	}
	if strings.HasPrefix(msg, "Error") {
		s.failure.Fprintln(s.out, msg)
		return
	}
	s.info.Fprintln(s.out, msg)
}
