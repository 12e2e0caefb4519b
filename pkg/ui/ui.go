package ui

import (
	"context"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/go-go-golems/cpichat/pkg/chat"
	"github.com/go-go-golems/cpichat/pkg/conversation"
	"github.com/go-go-golems/cpichat/pkg/render"
	"github.com/go-go-golems/cpichat/pkg/segments"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// states:
// - user input
// - user moving around messages
// - showing error
//
// Waiting for the assistant is tracked separately, the user can keep typing
// or browsing while a reply or a reformat is in flight.

type State string

const (
	StateUserInput    State = "user_input"
	StateMovingAround State = "moving_around"
	StateError        State = "error"
)

const copiedFlashDuration = 2 * time.Second

type errMsg struct {
	err error
}

type submitAcceptedMsg struct{}

type copiedMsg struct {
	messageID conversation.NodeID
	codeIdx   int
	seq       int
}

type clearCopiedMsg struct {
	seq int
}

type copiedState struct {
	active    bool
	messageID conversation.NodeID
	codeIdx   int
	seq       int
}

type renderedSegment struct {
	code    *segments.CodeSegment
	codeIdx int
	body    string
}

type model struct {
	controller *chat.Controller
	store      *conversation.Store

	agentName string
	subtitle  string

	// snapshot of the store, reloaded on every MessageAppendedMsg
	messages conversation.Conversation
	awaiting bool

	viewport viewport.Model
	textArea textarea.Model
	help     help.Model
	spinner  spinner.Model

	renderer   *render.TerminalRenderer
	proseStyle string
	rendered   map[conversation.NodeID][]renderedSegment
	offsets    []int

	// currently selected message and code block, only meaningful while moving around
	selectedIdx int
	codeIdx     int

	copied   copiedState
	copySeq  int
	copyFunc func(string) error

	err    error
	keyMap KeyMap

	style  *Style
	width  int
	height int

	state State
}

type ModelOption func(*model)

func WithAgent(name string, subtitle string) ModelOption {
	return func(m *model) {
		m.agentName = name
		m.subtitle = subtitle
	}
}

// WithProseStyle forces a glamour style for prose, e.g. "dark" or "notty".
func WithProseStyle(style string) ModelOption {
	return func(m *model) {
		m.proseStyle = style
	}
}

func WithClipboard(f func(string) error) ModelOption {
	return func(m *model) {
		m.copyFunc = f
	}
}

func WithStyle(style *Style) ModelOption {
	return func(m *model) {
		m.style = style
	}
}

func InitialModel(controller *chat.Controller, options ...ModelOption) model {
	ret := model{
		controller: controller,
		store:      controller.Store(),
		agentName:  "Assistant",
		style:      DefaultStyles(),
		keyMap:     DefaultKeyMap,
		viewport:   viewport.New(0, 0),
		help:       help.New(),
		spinner:    spinner.New(spinner.WithSpinner(spinner.Dot)),
		rendered:   map[conversation.NodeID][]renderedSegment{},
		copyFunc:   clipboard.WriteAll,
	}
	for _, o := range options {
		o(&ret)
	}

	ret.textArea = textarea.New()
	ret.textArea.Placeholder = "Ask for a Groovy script..."
	ret.textArea.ShowLineNumbers = false
	ret.textArea.SetHeight(3)
	ret.textArea.Focus()
	ret.state = StateUserInput

	ret.messages = ret.store.GetConversation()
	ret.awaiting = ret.store.IsAwaitingReply()
	ret.selectedIdx = len(ret.messages) - 1

	ret.refresh(true)

	return ret
}

func (m model) Init() tea.Cmd {
	cmds := []tea.Cmd{textarea.Blink}
	if m.awaiting {
		cmds = append(cmds, m.spinner.Tick)
	}
	return tea.Batch(cmds...)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keyMap.Quit):
			return m, tea.Quit

		case key.Matches(msg, m.keyMap.UnfocusMessage):
			m.textArea.Blur()
			m.state = StateMovingAround
			m.selectedIdx = len(m.messages) - 1
			m.codeIdx = 0
			m.refresh(false)
			m.scrollToSelected()

		case key.Matches(msg, m.keyMap.DismissError):
			m.err = nil
			m.state = StateUserInput
			cmds = append(cmds, m.textArea.Focus())
			m.recomputeSize()

		case key.Matches(msg, m.keyMap.FocusMessage):
			cmds = append(cmds, m.textArea.Focus())
			m.state = StateUserInput
			m.refresh(true)

		case key.Matches(msg, m.keyMap.SelectNextMessage):
			if m.selectedIdx < len(m.messages)-1 {
				m.selectedIdx++
				m.codeIdx = 0
			}
			m.refresh(false)
			m.scrollToSelected()

		case key.Matches(msg, m.keyMap.SelectPrevMessage):
			if m.selectedIdx > 0 {
				m.selectedIdx--
				m.codeIdx = 0
			}
			m.refresh(false)
			m.scrollToSelected()

		case key.Matches(msg, m.keyMap.SubmitMessage):
			cmds = append(cmds, m.submit())

		case key.Matches(msg, m.keyMap.Reformat):
			cmds = append(cmds, m.reformat())

		case key.Matches(msg, m.keyMap.CopyCode):
			cmds = append(cmds, m.copyCode())

		case key.Matches(msg, m.keyMap.NextCodeBlock):
			if n := len(m.selectedCodeBlocks()); n > 0 {
				m.codeIdx = (m.codeIdx + 1) % n
			}
			m.refresh(false)

		case key.Matches(msg, m.keyMap.PrevCodeBlock):
			if n := len(m.selectedCodeBlocks()); n > 0 {
				m.codeIdx = (m.codeIdx + n - 1) % n
			}
			m.refresh(false)

		case key.Matches(msg, m.keyMap.ScrollUp):
			m.viewport.HalfViewUp()

		case key.Matches(msg, m.keyMap.ScrollDown):
			m.viewport.HalfViewDown()

		case key.Matches(msg, m.keyMap.Help):
			m.help.ShowAll = !m.help.ShowAll
			m.recomputeSize()

		default:
			switch m.state {
			case StateUserInput:
				m.textArea, cmd = m.textArea.Update(msg)
				cmds = append(cmds, cmd)
				m.updateKeyBindings()
			case StateMovingAround, StateError:
				m.viewport, cmd = m.viewport.Update(msg)
				cmds = append(cmds, cmd)
			}
		}
		return m, tea.Batch(cmds...)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		m.recomputeSize()

	case MessageAppendedMsg:
		follow := m.state != StateMovingAround || m.selectedIdx >= len(m.messages)-1
		m.messages = m.store.GetConversation()
		if follow {
			m.selectedIdx = len(m.messages) - 1
			m.codeIdx = 0
		}
		m.refresh(follow)

	case AwaitingReplyMsg:
		wasAwaiting := m.awaiting
		m.awaiting = msg.Awaiting
		m.refresh(m.state != StateMovingAround)
		if m.awaiting && !wasAwaiting {
			cmds = append(cmds, m.spinner.Tick)
		}

	case ErrorEventMsg:
		m.setError(msg.Err)

	case errMsg:
		m.setError(msg.err)

	case submitAcceptedMsg:
		m.textArea.Reset()
		m.updateKeyBindings()

	case copiedMsg:
		m.copied = copiedState{
			active:    true,
			messageID: msg.messageID,
			codeIdx:   msg.codeIdx,
			seq:       msg.seq,
		}
		m.refresh(false)
		seq := msg.seq
		cmds = append(cmds, tea.Tick(copiedFlashDuration, func(time.Time) tea.Msg {
			return clearCopiedMsg{seq: seq}
		}))

	case clearCopiedMsg:
		if m.copied.active && m.copied.seq == msg.seq {
			m.copied = copiedState{}
			m.refresh(false)
		}

	case spinner.TickMsg:
		if !m.awaiting {
			return m, nil
		}
		m.spinner, cmd = m.spinner.Update(msg)
		m.refresh(false)
		return m, cmd

	default:
	}

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m *model) updateKeyBindings() {
	moving := m.state == StateMovingAround
	selected := m.selectedMessage()
	blocks := m.selectedCodeBlocks()

	m.keyMap.SelectNextMessage.SetEnabled(moving)
	m.keyMap.SelectPrevMessage.SetEnabled(moving)
	m.keyMap.FocusMessage.SetEnabled(moving)
	m.keyMap.UnfocusMessage.SetEnabled(m.state == StateUserInput)
	m.keyMap.SubmitMessage.SetEnabled(
		m.state == StateUserInput &&
			!m.awaiting &&
			strings.TrimSpace(m.textArea.Value()) != "",
	)

	m.keyMap.Reformat.SetEnabled(
		moving &&
			selected != nil &&
			selected.Role == conversation.RoleAssistant &&
			!m.controller.IsReformatting(selected.ID),
	)
	m.keyMap.CopyCode.SetEnabled(moving && len(blocks) > 0)
	m.keyMap.NextCodeBlock.SetEnabled(moving && len(blocks) > 1)
	m.keyMap.PrevCodeBlock.SetEnabled(moving && len(blocks) > 1)

	m.keyMap.DismissError.SetEnabled(m.state == StateError)
}

func (m *model) recomputeSize() {
	headerView := m.headerView()
	headerHeight := lipgloss.Height(headerView)
	textAreaView := m.textAreaView()
	textAreaHeight := lipgloss.Height(textAreaView)

	helpView := m.help.View(m.keyMap)
	helpViewHeight := lipgloss.Height(helpView)

	newHeight := m.height - textAreaHeight - headerHeight - helpViewHeight
	if newHeight < 0 {
		newHeight = 0
	}
	m.viewport.Width = m.width
	m.viewport.Height = newHeight
	m.viewport.YPosition = headerHeight + 1

	h, _ := m.style.FocusedMessage.GetFrameSize()
	m.textArea.SetWidth(m.width - h)

	m.resetRenderer()
	m.refresh(m.state != StateMovingAround)
}

func (m *model) contentWidth() int {
	h, _ := m.style.SelectedMessage.GetFrameSize()
	w := m.width - h
	if w < 20 {
		w = 20
	}
	return w
}

// resetRenderer rebuilds the markdown renderer when the width changed.
// Rendered messages are cached per ID since messages never change.
func (m *model) resetRenderer() {
	w := m.contentWidth()
	if m.renderer != nil && m.renderer.Width() == w {
		return
	}

	options := []render.TerminalOption{
		render.WithWidth(w),
		render.WithCodeHeader(nil),
	}
	if m.proseStyle != "" {
		options = append(options, render.WithProseStyle(m.proseStyle))
	}
	r, err := render.NewTerminalRenderer(options...)
	if err != nil {
		log.Warn().Err(err).Msg("could not create terminal renderer, showing raw messages")
		r = nil
	}
	m.renderer = r
	m.rendered = map[conversation.NodeID][]renderedSegment{}
}

func (m *model) refresh(goToBottom bool) {
	m.updateKeyBindings()

	content, offsets := m.messageView()
	m.offsets = offsets
	m.viewport.SetContent(content)
	if goToBottom {
		m.viewport.GotoBottom()
	}
}

func (m *model) scrollToSelected() {
	if m.selectedIdx >= 0 && m.selectedIdx < len(m.offsets) {
		m.viewport.SetYOffset(m.offsets[m.selectedIdx])
	}
}

func (m *model) selectedMessage() *conversation.Message {
	if m.selectedIdx < 0 || m.selectedIdx >= len(m.messages) {
		return nil
	}
	return m.messages[m.selectedIdx]
}

func (m *model) selectedCodeBlocks() []*segments.CodeSegment {
	selected := m.selectedMessage()
	if selected == nil {
		return nil
	}
	return segments.CodeBlocks(segments.Parse(selected.Content))
}

func (m model) headerView() string {
	ret := m.style.Header.Render(m.agentName)
	if m.subtitle != "" {
		ret += "  " + m.style.Subtitle.Render(m.subtitle)
	}
	return ret
}

func (m *model) renderSegments(msg *conversation.Message) []renderedSegment {
	if cached, ok := m.rendered[msg.ID]; ok {
		return cached
	}

	var ret []renderedSegment
	codeIdx := 0
	for _, s := range segments.Parse(msg.Content) {
		switch s_ := s.(type) {
		case *segments.CodeSegment:
			body := s_.Text
			if m.renderer != nil {
				out, err := m.renderer.RenderCode(codeIdx, s_)
				if err != nil {
					log.Warn().Err(err).Str("message_id", msg.ID.String()).Msg("could not highlight code")
				} else {
					body = out
				}
			}
			ret = append(ret, renderedSegment{code: s_, codeIdx: codeIdx, body: body})
			codeIdx++
		default:
			body := wrapWords(strings.Trim(s.String(), "\n"), m.contentWidth())
			if m.renderer != nil {
				out, err := m.renderer.RenderProse(s.String())
				if err != nil {
					log.Warn().Err(err).Str("message_id", msg.ID.String()).Msg("could not render markdown")
				} else {
					body = out
				}
			}
			if strings.TrimSpace(body) == "" {
				continue
			}
			ret = append(ret, renderedSegment{body: body})
		}
	}

	m.rendered[msg.ID] = ret
	return ret
}

func (m *model) roleLabel(msg *conversation.Message) string {
	switch msg.Role {
	case conversation.RoleUser:
		return "You"
	case conversation.RoleAssistant:
		if _, ok := msg.ReformatOf(); ok {
			return m.agentName + " (pretty printed)"
		}
		return m.agentName
	case conversation.RoleSystem:
		return "System"
	}
	return string(msg.Role)
}

func (m *model) codeHeader(msg *conversation.Message, selected bool, rs renderedSegment) string {
	h := m.style.CodeHeader.Render(render.DefaultCodeHeader(rs.codeIdx, rs.code))
	if selected && rs.codeIdx == m.codeIdx {
		h = "> " + h
	}
	if m.copied.active && m.copied.messageID == msg.ID && m.copied.codeIdx == rs.codeIdx {
		h += " " + m.style.Copied.Render("copied!")
	}
	return h
}

func (m *model) messageBox(idx int, msg *conversation.Message) string {
	selected := m.state == StateMovingAround && idx == m.selectedIdx

	parts := []string{m.style.Role.Render(m.roleLabel(msg))}
	codeBlocks := 0
	for _, rs := range m.renderSegments(msg) {
		if rs.code != nil {
			parts = append(parts, m.codeHeader(msg, selected, rs))
			codeBlocks++
		}
		parts = append(parts, rs.body)
	}

	if selected {
		var hints []string
		if msg.Role == conversation.RoleAssistant {
			if m.controller.IsReformatting(msg.ID) {
				hints = append(hints, "beautifying...")
			} else {
				hints = append(hints, "[r] beautify")
			}
		}
		if codeBlocks > 0 {
			hints = append(hints, "[c] copy code")
		}
		if len(hints) > 0 {
			parts = append(parts, m.style.Hint.Render(strings.Join(hints, "  ")))
		}
	}

	style := m.style.UnselectedMessage
	if selected {
		style = m.style.SelectedMessage
	}
	if m.width > 0 {
		style = style.Width(m.width - style.GetHorizontalBorderSize())
	}
	return style.Render(strings.Join(parts, "\n"))
}

func (m *model) loadingView() string {
	text := "Beautifying..."
	if m.controller.IsSubmitting() {
		text = m.agentName + " is thinking..."
	}
	return m.style.Loading.Render(m.spinner.View() + " " + text)
}

// messageView renders the whole conversation and returns the line offset of
// every message.
func (m *model) messageView() (string, []int) {
	var sb strings.Builder
	offsets := make([]int, 0, len(m.messages))
	line := 0

	for idx, msg := range m.messages {
		offsets = append(offsets, line)
		v := m.messageBox(idx, msg)
		sb.WriteString(v)
		sb.WriteString("\n")
		line += lipgloss.Height(v)
	}

	if m.awaiting {
		sb.WriteString(m.loadingView())
		sb.WriteString("\n")
	}

	return sb.String(), offsets
}

func (m model) textAreaView() string {
	if m.err != nil {
		w, _ := m.style.Error.GetFrameSize()
		v := wrapWords("Error: "+m.err.Error(), m.width-w)
		return m.style.Error.Render(v)
	}

	v := m.textArea.View()
	switch m.state {
	case StateUserInput:
		v = m.style.FocusedMessage.Render(v)
	case StateMovingAround, StateError:
		v = m.style.UnselectedMessage.Render(v)
	}

	return v
}

func (m model) View() string {
	headerView := m.headerView()
	viewportView := m.viewport.View()
	textAreaView := m.textAreaView()
	helpView := m.help.View(m.keyMap)

	return headerView + "\n" + viewportView + "\n" + textAreaView + "\n" + helpView
}

// submit hands the input to the controller off the event loop. The input is
// only cleared once the controller accepted it.
func (m *model) submit() tea.Cmd {
	text := m.textArea.Value()
	controller := m.controller
	return func() tea.Msg {
		_, err := controller.Submit(context.Background(), text)
		if err != nil {
			if errors.Is(err, chat.ErrSubmitInFlight) {
				log.Debug().Msg("submit ignored, reply already in flight")
				return nil
			}
			return errMsg{err: err}
		}
		return submitAcceptedMsg{}
	}
}

func (m *model) reformat() tea.Cmd {
	selected := m.selectedMessage()
	if selected == nil {
		return nil
	}
	controller := m.controller
	return func() tea.Msg {
		_, err := controller.RequestReformat(context.Background(), selected)
		if err != nil {
			if errors.Is(err, chat.ErrReformatInFlight) {
				log.Debug().Str("message_id", selected.ID.String()).Msg("reformat already in flight")
				return nil
			}
			return errMsg{err: err}
		}
		return nil
	}
}

func (m *model) copyCode() tea.Cmd {
	selected := m.selectedMessage()
	blocks := m.selectedCodeBlocks()
	if selected == nil || m.codeIdx >= len(blocks) {
		return nil
	}

	m.copySeq++
	msg := copiedMsg{
		messageID: selected.ID,
		codeIdx:   m.codeIdx,
		seq:       m.copySeq,
	}
	text := blocks[m.codeIdx].Text
	copyFunc := m.copyFunc
	return func() tea.Msg {
		if err := copyFunc(text); err != nil {
			return errMsg{err: errors.Wrap(err, "could not copy code to clipboard")}
		}
		return msg
	}
}

func (m *model) setError(err error) {
	if err == nil {
		return
	}
	m.err = err
	m.state = StateError
	m.textArea.Blur()
	m.recomputeSize()
}
