package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-go-golems/cpichat/pkg/chat"
	"github.com/go-go-golems/cpichat/pkg/conversation"
	"github.com/go-go-golems/cpichat/pkg/events"
	"github.com/go-go-golems/cpichat/pkg/render"
	"github.com/go-go-golems/cpichat/pkg/steps/ai"
	"github.com/go-go-golems/cpichat/pkg/steps/ai/settings"
	"github.com/go-go-golems/cpichat/pkg/ui"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the assistant (default command)",
	Long: "Opens an interactive chat. Text piped on stdin is sent as the first message.\n" +
		"On a non-terminal stdout, or with --plain, a line based chat is used instead.",
	Args: cobra.NoArgs,
	RunE: runChat,
}

func seedMessages(s *settings.Settings) ([]*conversation.Message, error) {
	greeting, err := s.Agent.RenderGreeting()
	if err != nil {
		return nil, err
	}
	if greeting == "" {
		return nil, nil
	}
	return []*conversation.Message{
		conversation.NewChatMessage(conversation.RoleAssistant, greeting),
	}, nil
}

func runChat(cmd *cobra.Command, args []string) error {
	s, err := settings.Load(cmd)
	if err != nil {
		return err
	}

	factory := &ai.StandardBackendFactory{Settings: s}
	backend, err := factory.NewBackend()
	if err != nil {
		return err
	}

	seed, err := seedMessages(s)
	if err != nil {
		return err
	}

	stdoutIsTerminal := isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
	stdinIsTerminal := isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd())

	ctx := cmd.Context()
	if viper.GetBool("plain") || !stdoutIsTerminal {
		return runPlain(ctx, s, backend, seed)
	}

	firstPrompt := ""
	var input io.Reader
	if !stdinIsTerminal {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return errors.Wrap(err, "could not read stdin")
		}
		firstPrompt = strings.TrimSpace(string(b))

		tty, err := ui.OpenTTY()
		if err != nil {
			return errors.Wrap(err, "could not open terminal")
		}
		defer func() {
			_ = tty.Close()
		}()
		input = tty
	}

	return runTUI(ctx, s, backend, seed, input, firstPrompt)
}

func runTUI(
	ctx context.Context,
	s *settings.Settings,
	backend *ai.Backend,
	seed []*conversation.Message,
	input io.Reader,
	firstPrompt string,
) error {
	router, err := events.NewEventRouter(events.WithVerbose(viper.GetBool("verbose")))
	if err != nil {
		return err
	}
	defer func() {
		_ = router.Close()
	}()

	store := conversation.NewStore(
		conversation.WithMessages(seed...),
		conversation.WithSink(events.NewWatermillSink(router.Publisher, events.TopicChat)),
	)
	controller := chat.NewController(store, backend.Sender, backend.Reformatter, chat.WithTimeout(s.Chat.Timeout()))
	defer func() {
		controller.Close()
		store.Close()
	}()

	m := ui.InitialModel(controller, ui.WithAgent(s.Agent.Name, s.Agent.Subtitle))
	options := []tea.ProgramOption{tea.WithAltScreen(), tea.WithMouseCellMotion()}
	if input != nil {
		options = append(options, tea.WithInput(input))
	}
	p := tea.NewProgram(m, options...)

	router.AddEventHandler("ui-forward", events.TopicChat, ui.ForwardEvents(p))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		return router.Run(ctx)
	})

	eg.Go(func() error {
		defer cancel()

		select {
		case <-router.Running():
		case <-ctx.Done():
			return nil
		}

		if firstPrompt != "" {
			go func() {
				if _, err := controller.Submit(ctx, firstPrompt); err != nil {
					log.Error().Err(err).Msg("could not submit piped input")
				}
			}()
		}

		_, err := p.Run()
		return err
	})

	eg.Go(func() error {
		<-ctx.Done()
		p.Quit()
		return nil
	})

	return eg.Wait()
}

func runPlain(
	ctx context.Context,
	s *settings.Settings,
	backend *ai.Backend,
	seed []*conversation.Message,
) error {
	storeOptions := []conversation.StoreOption{conversation.WithMessages(seed...)}

	eg, ctx := errgroup.WithContext(ctx)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if viper.GetBool("dump-events") {
		router, err := events.NewEventRouter(
			events.WithVerbose(viper.GetBool("verbose")),
			events.WithDumpWriter(os.Stderr),
		)
		if err != nil {
			return err
		}
		defer func() {
			_ = router.Close()
		}()
		router.AddHandler("dump", events.TopicChat, router.DumpRawEvents)
		storeOptions = append(storeOptions,
			conversation.WithSink(events.NewWatermillSink(router.Publisher, events.TopicChat)))

		eg.Go(func() error {
			return router.Run(ctx)
		})
		select {
		case <-router.Running():
		case <-ctx.Done():
			return eg.Wait()
		}
	}

	store := conversation.NewStore(storeOptions...)
	controller := chat.NewController(store, backend.Sender, backend.Reformatter, chat.WithTimeout(s.Chat.Timeout()))
	defer func() {
		controller.Close()
		store.Close()
	}()

	plainOptions := []ui.PlainOption{ui.WithPlainAgent(s.Agent.Name, s.Agent.Subtitle)}
	if isatty.IsTerminal(os.Stdout.Fd()) {
		r, err := render.NewTerminalRenderer()
		if err != nil {
			return err
		}
		plainOptions = append(plainOptions, ui.WithPlainRenderer(r))
	}
	p := ui.NewPlainChat(controller, os.Stdin, os.Stdout, plainOptions...)

	eg.Go(func() error {
		defer cancel()
		return p.Run(ctx)
	})

	err := eg.Wait()
	if viper.GetBool("dump-events") {
		_, _ = fmt.Fprintf(os.Stderr, "--- transcript ---\n%s", store.GetConversation().GetSinglePrompt())
	}
	return err
}
