package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dgellow/identity-bot/internal"
	"github.com/dgellow/identity-bot/internal/bot"
	"github.com/dgellow/identity-bot/internal/log"
	"golang.org/x/sync/errgroup"
)

// verifyCommand simulates the notifySuccess invoke a chat client would send
const verifyCommand = "/verify"

var consoleAddress = bot.Address{
	ChannelID:    "console",
	User:         bot.ChannelAccount{ID: "console-user", Name: "User"},
	Bot:          bot.ChannelAccount{ID: "identity-bot", Name: "Bot"},
	Conversation: bot.ConversationAccount{ID: "console"},
}

type turnRunner interface {
	Run(ctx context.Context, activity bot.Activity) ([]bot.Reply, error)
}

// console turns terminal lines into activities. A bare number presses the
// matching button of the last card.
type console struct {
	turns   turnRunner
	out     io.Writer
	buttons []bot.CardAction
}

func runChat(ctx context.Context, app *internal.IdentityBot, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return app.Run(gctx)
	})

	g.Go(func() error {
		defer cancel()
		c := &console{turns: app.Messages(), out: out}
		fmt.Fprintf(out, "Type a message, a button number, or %s <code>. Ctrl-D quits.\n", verifyCommand)
		return c.loop(gctx, in)
	})

	return g.Wait()
}

func (c *console) loop(ctx context.Context, in io.Reader) error {
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
		fmt.Fprint(c.out, "> ")
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				fmt.Fprintln(c.out)
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			if err := c.handleLine(ctx, line); err != nil {
				log.LogErrorWithFields("chat", "Turn failed", map[string]any{
					"error": err.Error(),
				})
			}
		}
	}
}

func (c *console) handleLine(ctx context.Context, line string) error {
	activity, ok := c.activityFor(strings.TrimSpace(line))
	if !ok {
		return nil
	}

	replies, err := c.turns.Run(ctx, activity)
	if err != nil {
		return err
	}
	c.print(replies)
	return nil
}

func (c *console) activityFor(line string) (bot.Activity, bool) {
	if line == "" {
		return bot.Activity{}, false
	}

	if code, found := strings.CutPrefix(line, verifyCommand+" "); found {
		value, _ := json.Marshal(bot.VerifyStateValue{State: strings.TrimSpace(code)})
		return bot.Activity{
			Type:    bot.ActivityTypeInvoke,
			Name:    bot.InvokeVerifyState,
			Value:   value,
			Address: consoleAddress,
		}, true
	}

	if n, err := strconv.Atoi(line); err == nil && n >= 1 && n <= len(c.buttons) {
		button := c.buttons[n-1]
		switch button.Type {
		case bot.ActionMessageBack:
			line = button.Text
		case bot.ActionIMBack:
			line = button.Value
		default:
			fmt.Fprintf(c.out, "Open in a browser: %s\n", button.Value)
			return bot.Activity{}, false
		}
	}

	return bot.Activity{
		Type:    bot.ActivityTypeMessage,
		Text:    line,
		Address: consoleAddress,
	}, true
}

func (c *console) print(replies []bot.Reply) {
	for _, r := range replies {
		if r.Text != "" {
			fmt.Fprintf(c.out, "bot: %s\n", r.Text)
		}
		if r.Card != nil {
			c.printCard(*r.Card)
		}
	}
}

func (c *console) printCard(card bot.Card) {
	for _, s := range []string{card.Title, card.Subtitle, card.Text} {
		if s != "" {
			fmt.Fprintf(c.out, "  | %s\n", s)
		}
	}
	for _, img := range card.Images {
		fmt.Fprintf(c.out, "  | image: %s\n", img.URL)
	}
	if len(card.Buttons) == 0 {
		return
	}
	c.buttons = card.Buttons
	for i, b := range card.Buttons {
		if b.Type == bot.ActionSignIn || b.Type == bot.ActionOpenURL {
			fmt.Fprintf(c.out, "  [%d] %s: %s\n", i+1, b.Title, b.Value)
			continue
		}
		fmt.Fprintf(c.out, "  [%d] %s\n", i+1, b.Title)
	}
}
