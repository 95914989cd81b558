package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jroimartin/gocui"
	"go.uber.org/zap"

	"github.com/Tyrowin/gochat/internal/config"
	"github.com/Tyrowin/gochat/internal/session"
	"github.com/Tyrowin/gochat/internal/transport"
)

const (
	messagesView = "messages"
	roomsView    = "rooms"
	usersView    = "users"
	statusView   = "status"
	inputView    = "input"
	netlogView   = "netlog"
	helpView     = "help"

	sidebarWidth    = 28
	refreshInterval = 500 * time.Millisecond
)

const keyHelp = `Enter      send message or select the highlighted room/user
Tab        cycle input, rooms and users
Ctrl-P     measure latency
Ctrl-X     leave private chat
Ctrl-N     toggle network monitor
F1         toggle this help
Ctrl-C     quit

` + session.HelpText

// Screen is a full-screen terminal renderer built on gocui. Renderer callbacks
// may arrive from any goroutine; they are queued on updates so that every view
// and field below is only touched on the gocui main loop, in callback order.
type Screen struct {
	gui     *gocui.Gui
	updates *updateQueue
	logger  *zap.Logger
	actions Actions

	status   statusLine
	rooms    []string
	users    []session.User
	netlog   []session.LogEntry
	showLog  bool
	showHelp bool
}

var _ Runner = (*Screen)(nil)

// NewScreen initialises the terminal. Close is called by Run.
func NewScreen(logger *zap.Logger) (*Screen, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	g, err := gocui.NewGui(gocui.OutputNormal)
	if err != nil {
		return nil, fmt.Errorf("init terminal: %w", err)
	}
	g.Cursor = true

	s := &Screen{
		gui:    g,
		logger: logger,
		status: statusLine{conn: transport.Disconnected},
	}
	s.updates = newUpdateQueue(g.Update)
	g.SetManagerFunc(s.layout)
	return s, nil
}

// Run drives the interface until ctx is cancelled or the user quits.
func (s *Screen) Run(ctx context.Context, actions Actions) error {
	defer s.gui.Close()
	s.actions = actions

	if err := s.keybindings(); err != nil {
		return err
	}

	stop := make(chan struct{})
	defer close(stop)
	go s.refreshLoop(ctx, stop)
	go func() {
		select {
		case <-ctx.Done():
			s.updates.push(func(*gocui.Gui) error { return gocui.ErrQuit })
		case <-stop:
		}
	}()

	if err := s.gui.MainLoop(); err != nil && !errors.Is(err, gocui.ErrQuit) {
		return err
	}
	return nil
}

func (s *Screen) layout(g *gocui.Gui) error {
	maxX, maxY := g.Size()
	msgRight := maxX - sidebarWidth - 1
	msgBottom := maxY - 6
	roomsBottom := msgBottom / 3

	if v, err := g.SetView(messagesView, 0, 0, msgRight, msgBottom); err != nil {
		if !errors.Is(err, gocui.ErrUnknownView) {
			return err
		}
		v.Title = "Messages"
		v.Wrap = true
		v.Autoscroll = true
	}

	if v, err := g.SetView(roomsView, msgRight+1, 0, maxX-1, roomsBottom); err != nil {
		if !errors.Is(err, gocui.ErrUnknownView) {
			return err
		}
		v.Title = "Rooms"
		v.Highlight = true
		v.SelBgColor = gocui.ColorBlue
		v.SelFgColor = gocui.ColorWhite
		s.drawRooms(v)
	}

	if v, err := g.SetView(usersView, msgRight+1, roomsBottom+1, maxX-1, msgBottom); err != nil {
		if !errors.Is(err, gocui.ErrUnknownView) {
			return err
		}
		v.Title = "Online Users"
		v.Highlight = true
		v.SelBgColor = gocui.ColorBlue
		v.SelFgColor = gocui.ColorWhite
		s.drawUsers(v)
	}

	if v, err := g.SetView(statusView, 0, msgBottom+1, maxX-1, msgBottom+3); err != nil {
		if !errors.Is(err, gocui.ErrUnknownView) {
			return err
		}
		v.Title = "Status"
		s.drawStatus(v)
	}

	if v, err := g.SetView(inputView, 0, msgBottom+3, maxX-1, maxY-1); err != nil {
		if !errors.Is(err, gocui.ErrUnknownView) {
			return err
		}
		v.Title = "Input"
		v.Editable = true
		v.Wrap = true
		if _, err := g.SetCurrentView(inputView); err != nil {
			return err
		}
	}

	if err := s.overlay(g, netlogView, s.showLog, maxX, maxY, func(v *gocui.View) {
		v.Title = "Network Monitor"
		v.Wrap = true
		v.Autoscroll = true
		s.drawNetlog(v)
	}); err != nil {
		return err
	}

	return s.overlay(g, helpView, s.showHelp, maxX, maxY, func(v *gocui.View) {
		v.Title = "Help"
		fmt.Fprint(v, keyHelp)
	})
}

// overlay shows or removes a centred window.
func (s *Screen) overlay(g *gocui.Gui, name string, show bool, maxX, maxY int, init func(*gocui.View)) error {
	if !show {
		if err := g.DeleteView(name); err != nil && !errors.Is(err, gocui.ErrUnknownView) {
			return err
		}
		return nil
	}

	v, err := g.SetView(name, maxX/8, maxY/8, maxX*7/8, maxY*7/8)
	if err != nil {
		if !errors.Is(err, gocui.ErrUnknownView) {
			return err
		}
		init(v)
	}
	_, err = g.SetViewOnTop(name)
	return err
}

func (s *Screen) keybindings() error {
	bindings := []struct {
		view    string
		key     any
		handler func(*gocui.Gui, *gocui.View) error
	}{
		{"", gocui.KeyCtrlC, func(*gocui.Gui, *gocui.View) error { return gocui.ErrQuit }},
		{"", gocui.KeyCtrlP, s.ping},
		{"", gocui.KeyCtrlX, s.exitPrivate},
		{"", gocui.KeyCtrlN, s.toggleNetlog},
		{"", gocui.KeyF1, s.toggleHelp},
		{"", gocui.KeyTab, s.nextView},
		{inputView, gocui.KeyEnter, s.submit},
		{roomsView, gocui.KeyEnter, s.selectRoom},
		{usersView, gocui.KeyEnter, s.selectUser},
		{roomsView, gocui.KeyArrowUp, moveCursor(-1)},
		{roomsView, gocui.KeyArrowDown, moveCursor(1)},
		{usersView, gocui.KeyArrowUp, moveCursor(-1)},
		{usersView, gocui.KeyArrowDown, moveCursor(1)},
	}

	for _, b := range bindings {
		if err := s.gui.SetKeybinding(b.view, b.key, gocui.ModNone, b.handler); err != nil {
			return err
		}
	}
	return nil
}

func (s *Screen) submit(_ *gocui.Gui, v *gocui.View) error {
	input := strings.TrimSpace(v.Buffer())
	v.Clear()
	if err := v.SetCursor(0, 0); err != nil {
		return err
	}
	if input != "" {
		s.actions.Submit(input)
	}
	return nil
}

func (s *Screen) selectRoom(_ *gocui.Gui, v *gocui.View) error {
	if name := selectedLine(v); name != "" {
		s.actions.SelectRoom(strings.TrimPrefix(name, "* "))
	}
	return s.focusInput()
}

func (s *Screen) selectUser(_ *gocui.Gui, v *gocui.View) error {
	_, y := v.Cursor()
	_, oy := v.Origin()
	if i := y + oy; i >= 0 && i < len(s.users) {
		s.actions.StartPrivateChat(s.users[i].Username)
	}
	return s.focusInput()
}

func (s *Screen) ping(*gocui.Gui, *gocui.View) error {
	s.actions.Ping()
	return nil
}

func (s *Screen) exitPrivate(*gocui.Gui, *gocui.View) error {
	s.actions.ExitPrivateMode()
	return nil
}

func (s *Screen) toggleNetlog(*gocui.Gui, *gocui.View) error {
	s.showLog = !s.showLog
	return nil
}

func (s *Screen) toggleHelp(*gocui.Gui, *gocui.View) error {
	s.showHelp = !s.showHelp
	return nil
}

func (s *Screen) nextView(g *gocui.Gui, v *gocui.View) error {
	next := map[string]string{
		inputView: roomsView,
		roomsView: usersView,
		usersView: inputView,
	}
	name := inputView
	if v != nil {
		if n, ok := next[v.Name()]; ok {
			name = n
		}
	}
	_, err := g.SetCurrentView(name)
	return err
}

func (s *Screen) focusInput() error {
	_, err := s.gui.SetCurrentView(inputView)
	return err
}

func moveCursor(dy int) func(*gocui.Gui, *gocui.View) error {
	return func(_ *gocui.Gui, v *gocui.View) error {
		if v == nil {
			return nil
		}
		x, y := v.Cursor()
		if y+dy < 0 {
			return nil
		}
		if _, err := v.Line(y + dy); err != nil {
			return nil
		}
		return v.SetCursor(x, y+dy)
	}
}

func selectedLine(v *gocui.View) string {
	_, y := v.Cursor()
	line, err := v.Line(y)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(line)
}

// refreshLoop pulls room, identity and counter state that has no renderer
// callback. It also resyncs the connection state from the session.
func (s *Screen) refreshLoop(ctx context.Context, stop <-chan struct{}) {
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			snap := s.actions.Snapshot()
			s.updates.push(func(g *gocui.Gui) error {
				s.status = statusFromSnapshot(snap)
				s.rooms = snap.Rooms
				s.redraw(g, roomsView, s.drawRooms)
				s.redraw(g, statusView, s.drawStatus)
				return nil
			})
		}
	}
}

// redraw runs draw against an existing view. Missing views are skipped since
// an error returned from an update would end the main loop.
func (s *Screen) redraw(g *gocui.Gui, name string, draw func(*gocui.View)) {
	v, err := g.View(name)
	if err != nil {
		return
	}
	draw(v)
}

func (s *Screen) drawRooms(v *gocui.View) {
	v.Clear()
	for _, r := range s.rooms {
		prefix := "  "
		if r == s.status.room {
			prefix = "* "
		}
		fmt.Fprintln(v, prefix+r)
	}
}

func (s *Screen) drawUsers(v *gocui.View) {
	v.Clear()
	for _, u := range s.users {
		fmt.Fprintln(v, FormatUser(u))
	}
}

func (s *Screen) drawStatus(v *gocui.View) {
	v.Clear()
	fmt.Fprint(v, stateColor(s.status.conn)+"●"+colorReset+" "+s.status.String())
}

func (s *Screen) drawNetlog(v *gocui.View) {
	v.Clear()
	for _, e := range s.netlog {
		fmt.Fprintln(v, logColor(e.Category)+FormatLogEntry(e)+colorReset)
	}
}

func (s *Screen) appendMessage(line string) {
	s.updates.push(func(g *gocui.Gui) error {
		v, err := g.View(messagesView)
		if err != nil {
			s.logger.Debug("messages view not ready", zap.Error(err))
			return nil
		}
		fmt.Fprintln(v, line)
		return nil
	})
}

// OnMessageDisplay appends a chat or private line to the messages view.
func (s *Screen) OnMessageDisplay(e session.Entry) {
	line := FormatEntry(e)
	if e.Self {
		line = colorCyan + line + colorReset
	}
	s.appendMessage(line)
}

// OnSystemNotice appends a highlighted notice.
func (s *Screen) OnSystemNotice(text string) {
	s.appendMessage(colorYellow + FormatNotice(time.Now(), text) + colorReset)
}

// OnUserDirectoryChange redraws the users view.
func (s *Screen) OnUserDirectoryChange(users []session.User) {
	s.updates.push(func(g *gocui.Gui) error {
		s.users = users
		s.redraw(g, usersView, s.drawUsers)
		return nil
	})
}

// OnConnectionStatusChange updates the status indicator.
func (s *Screen) OnConnectionStatusChange(st transport.State) {
	s.updates.push(func(g *gocui.Gui) error {
		s.status.conn = st
		s.redraw(g, statusView, s.drawStatus)
		return nil
	})
}

// OnLatencyUpdate shows the latest ping result in the status bar.
func (s *Screen) OnLatencyUpdate(current, average time.Duration) {
	s.updates.push(func(g *gocui.Gui) error {
		s.status.latency = FormatLatency(current, average)
		s.redraw(g, statusView, s.drawStatus)
		return nil
	})
}

// OnNetworkLogAppend keeps the last entries for the network monitor overlay.
func (s *Screen) OnNetworkLogAppend(e session.LogEntry) {
	s.updates.push(func(g *gocui.Gui) error {
		s.netlog = append(s.netlog, e)
		if len(s.netlog) > config.DefaultNetworkLogSize {
			s.netlog = s.netlog[len(s.netlog)-config.DefaultNetworkLogSize:]
		}
		if s.showLog {
			s.redraw(g, netlogView, s.drawNetlog)
		}
		return nil
	})
}

// OnClientAddress shows the address the server reported for this client.
func (s *Screen) OnClientAddress(addr string) {
	s.updates.push(func(g *gocui.Gui) error {
		s.status.address = addr
		s.redraw(g, statusView, s.drawStatus)
		return nil
	})
}
