package ui

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/atotto/clipboard"
	"github.com/fatih/color"
	"github.com/go-go-golems/cpichat/pkg/chat"
	"github.com/go-go-golems/cpichat/pkg/conversation"
	"github.com/go-go-golems/cpichat/pkg/events"
	"github.com/go-go-golems/cpichat/pkg/render"
	"github.com/go-go-golems/cpichat/pkg/segments"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/tcnksm/go-input"
)

// lineReader hands out one byte per Read so every prompt consumes exactly
// one line of a piped input, and remembers when the input ran out.
type lineReader struct {
	r   io.Reader
	eof atomic.Bool
}

func (l *lineReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	n, err := l.r.Read(p[:1])
	if err == io.EOF {
		l.eof.Store(true)
	}
	return n, err
}

// PlainChat is a line based chat for non-interactive terminals and pipes.
//
// Lines starting with a slash are commands:
//
//	/beautify [n]  pretty print message n, or the last assistant message
//	/copy [n]      copy code block n of the last assistant message
//	/quit          leave
type PlainChat struct {
	controller *chat.Controller
	store      *conversation.Store
	collector  *events.CollectingSink

	in  *lineReader
	ui  *input.UI
	out io.Writer

	renderer  *render.TerminalRenderer
	agentName string
	subtitle  string
	copyFunc  func(string) error

	userColor      *color.Color
	assistantColor *color.Color
	errorColor     *color.Color
	hintColor      *color.Color
}

type PlainOption func(*PlainChat)

// WithPlainRenderer renders messages through r instead of printing raw text.
func WithPlainRenderer(r *render.TerminalRenderer) PlainOption {
	return func(p *PlainChat) {
		p.renderer = r
	}
}

func WithPlainAgent(name string, subtitle string) PlainOption {
	return func(p *PlainChat) {
		p.agentName = name
		p.subtitle = subtitle
	}
}

func WithPlainClipboard(f func(string) error) PlainOption {
	return func(p *PlainChat) {
		p.copyFunc = f
	}
}

func NewPlainChat(controller *chat.Controller, in io.Reader, out io.Writer, options ...PlainOption) *PlainChat {
	lr := &lineReader{r: in}
	ret := &PlainChat{
		controller: controller,
		store:      controller.Store(),
		collector:  events.NewCollectingSink(),
		in:         lr,
		ui: &input.UI{
			Reader: lr,
			Writer: out,
		},
		out:            out,
		agentName:      "Assistant",
		copyFunc:       clipboard.WriteAll,
		userColor:      color.New(color.FgGreen, color.Bold),
		assistantColor: color.New(color.FgCyan, color.Bold),
		errorColor:     color.New(color.FgRed),
		hintColor:      color.New(color.Faint),
	}
	for _, o := range options {
		o(ret)
	}
	ret.store.AddSink(ret.collector)
	return ret
}

// Run prints the conversation so far and then reads lines until /quit, the
// end of the input, or ctx is done.
func (p *PlainChat) Run(ctx context.Context) error {
	p.printHeader()
	for idx, msg := range p.store.GetConversation() {
		p.printMessage(idx, msg)
	}
	p.collector.Drain()

	for {
		if ctx.Err() != nil {
			return nil
		}

		line, err := p.ui.Ask("You", &input.Options{HideOrder: true})
		if err != nil {
			if errors.Is(err, input.ErrInterrupted) {
				return nil
			}
			return errors.Wrap(err, "could not read input")
		}

		line = strings.TrimSpace(line)
		if line == "" {
			if p.in.eof.Load() {
				return nil
			}
			continue
		}

		quit, err := p.handleLine(ctx, line)
		if err != nil {
			return err
		}
		if quit || p.in.eof.Load() {
			return nil
		}
	}
}

func (p *PlainChat) handleLine(ctx context.Context, line string) (bool, error) {
	if !strings.HasPrefix(line, "/") {
		handle, err := p.controller.Submit(ctx, line)
		if err != nil {
			p.printError(err)
			return false, nil
		}
		p.hintColor.Fprintf(p.out, "%s is thinking...\n", p.agentName)
		return false, p.wait(ctx, handle)
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit", "/q":
		return true, nil

	case "/beautify", "/b":
		msg, err := p.pickMessage(fields[1:])
		if err != nil {
			p.printError(err)
			return false, nil
		}
		handle, err := p.controller.RequestReformat(ctx, msg)
		if err != nil {
			p.printError(err)
			return false, nil
		}
		p.hintColor.Fprintln(p.out, "Beautifying...")
		return false, p.wait(ctx, handle)

	case "/copy", "/c":
		p.copyCode(fields[1:])
		return false, nil
	}

	p.printError(errors.Errorf("unknown command %s", fields[0]))
	return false, nil
}

// pickMessage returns message n (as numbered in the output) or the last
// assistant message.
func (p *PlainChat) pickMessage(args []string) (*conversation.Message, error) {
	conv := p.store.GetConversation()
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 || n > len(conv) {
			return nil, errors.Errorf("no message %s", args[0])
		}
		return conv[n-1], nil
	}
	for i := len(conv) - 1; i >= 0; i-- {
		if conv[i].Role == conversation.RoleAssistant {
			return conv[i], nil
		}
	}
	return nil, errors.New("no assistant message yet")
}

func (p *PlainChat) copyCode(args []string) {
	msg, err := p.pickMessage(nil)
	if err != nil {
		p.printError(err)
		return
	}
	blocks := segments.CodeBlocks(segments.Parse(msg.Content))

	n := 1
	if len(args) > 0 {
		n, err = strconv.Atoi(args[0])
		if err != nil {
			n = 0
		}
	}
	if n < 1 || n > len(blocks) {
		p.printError(errors.Errorf("no code block %d, the last message has %d", n, len(blocks)))
		return
	}

	if err := p.copyFunc(blocks[n-1].Text); err != nil {
		p.printError(errors.Wrap(err, "could not copy code to clipboard"))
		return
	}
	p.hintColor.Fprintf(p.out, "[%d] copied!\n", n)
}

func (p *PlainChat) wait(ctx context.Context, handle *chat.Handle) error {
	select {
	case <-handle.Done():
	case <-ctx.Done():
		handle.Cancel()
		return nil
	}
	_, waitErr := handle.Wait()

	printedErrors := p.printEvents()
	if waitErr != nil && printedErrors == 0 {
		p.printError(waitErr)
	}
	return nil
}

// printEvents prints what the store reported since the last call and returns
// the number of errors among them.
func (p *PlainChat) printEvents() int {
	errorCount := 0
	conv := p.store.GetConversation()
	for _, e := range p.collector.Drain() {
		switch e_ := e.(type) {
		case *events.EventMessageAppended:
			if e_.Index < 0 || e_.Index >= len(conv) {
				log.Warn().Int("index", e_.Index).Msg("appended message not in snapshot")
				continue
			}
			if conv[e_.Index].Role == conversation.RoleUser {
				continue
			}
			p.printMessage(e_.Index, conv[e_.Index])
		case *events.EventError:
			p.printError(e_.Error())
			errorCount++
		}
	}
	return errorCount
}

func (p *PlainChat) printHeader() {
	p.assistantColor.Fprint(p.out, p.agentName)
	if p.subtitle != "" {
		fmt.Fprintf(p.out, " - %s", p.subtitle)
	}
	fmt.Fprintln(p.out)
	p.hintColor.Fprintln(p.out, "Commands: /beautify [n], /copy [n], /quit")
	fmt.Fprintln(p.out)
}

func (p *PlainChat) printMessage(idx int, msg *conversation.Message) {
	label := p.agentName
	c := p.assistantColor
	switch msg.Role {
	case conversation.RoleUser:
		label = "You"
		c = p.userColor
	case conversation.RoleAssistant:
		if _, ok := msg.ReformatOf(); ok {
			label += " (pretty printed)"
		}
	case conversation.RoleSystem:
		label = "System"
	}
	c.Fprintf(p.out, "[%d] %s:\n", idx+1, label)

	content := msg.Content
	if p.renderer != nil {
		out, err := p.renderer.RenderMessage(msg.Content)
		if err != nil {
			log.Warn().Err(err).Str("message_id", msg.ID.String()).Msg("could not render message")
		} else {
			content = out
		}
	}
	fmt.Fprintln(p.out, content)
	fmt.Fprintln(p.out)
}

func (p *PlainChat) printError(err error) {
	p.errorColor.Fprintf(p.out, "Error: %s\n", err)
}
