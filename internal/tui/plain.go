package tui

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/Tyrowin/gochat/internal/config"
	"github.com/Tyrowin/gochat/internal/session"
	"github.com/Tyrowin/gochat/internal/transport"
)

// plainHelp lists the commands handled by Plain itself.
const plainHelp = `local commands:
  /private <user>       send plain text to <user> until /leave
  /leave                leave private chat
  /room <name>          switch room and leave private chat
  /log                  show the network monitor
  /status               show connection, identity and message counters
  /quit                 exit`

// Plain is a line-oriented renderer. Output is written to w; input lines are
// read from the reader passed to NewPlain.
type Plain struct {
	in  io.Reader
	now func() time.Time

	mu      sync.Mutex
	out     io.Writer
	verbose bool
	netlog  []session.LogEntry
}

var _ Runner = (*Plain)(nil)

// NewPlain creates a Plain renderer. With verbose set every network log entry
// is printed as it happens.
func NewPlain(in io.Reader, out io.Writer, verbose bool) *Plain {
	return &Plain{in: in, out: out, verbose: verbose, now: time.Now}
}

// Run reads input until EOF, /quit or ctx cancellation.
func (p *Plain) Run(ctx context.Context, actions Actions) error {
	lines := make(chan string)
	errc := make(chan error, 1)

	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(p.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-errc:
					return err
				default:
					return nil
				}
			}
			if quit := p.handle(strings.TrimSpace(line), actions); quit {
				return nil
			}
		}
	}
}

func (p *Plain) handle(line string, actions Actions) (quit bool) {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/quit", "/exit":
		return true
	case "/private":
		actions.StartPrivateChat(arg)
	case "/leave":
		actions.ExitPrivateMode()
	case "/room":
		actions.SelectRoom(arg)
	case "/log":
		p.printLog()
	case "/status":
		p.println(statusFromSnapshot(actions.Snapshot()).String())
	case "/help":
		actions.Submit(line)
		p.println(plainHelp)
	default:
		actions.Submit(line)
	}
	return false
}

func (p *Plain) printLog() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.netlog {
		fmt.Fprintln(p.out, FormatLogEntry(e))
	}
}

func (p *Plain) println(line string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, line)
}

// OnMessageDisplay prints one formatted message line.
func (p *Plain) OnMessageDisplay(e session.Entry) {
	p.println(FormatEntry(e))
}

// OnSystemNotice prints a notice stamped with the local time.
func (p *Plain) OnSystemNotice(text string) {
	p.println(FormatNotice(p.now(), text))
}

// OnUserDirectoryChange prints the room's user list.
func (p *Plain) OnUserDirectoryChange(users []session.User) {
	names := make([]string, 0, len(users))
	for _, u := range users {
		names = append(names, FormatUser(u))
	}
	p.println(fmt.Sprintf("users (%d): %s", len(users), strings.Join(names, ", ")))
}

// OnConnectionStatusChange prints the new connection state.
func (p *Plain) OnConnectionStatusChange(st transport.State) {
	p.println("-- " + st.String())
}

// OnLatencyUpdate prints the latest round trip and the running average.
func (p *Plain) OnLatencyUpdate(current, average time.Duration) {
	p.println("latency " + FormatLatency(current, average))
}

// OnNetworkLogAppend keeps the entry for /log and prints it in verbose mode.
func (p *Plain) OnNetworkLogAppend(e session.LogEntry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.netlog = append(p.netlog, e)
	if len(p.netlog) > config.DefaultNetworkLogSize {
		p.netlog = p.netlog[1:]
	}
	if p.verbose {
		fmt.Fprintln(p.out, FormatLogEntry(e))
	}
}

// OnClientAddress prints the address the server reported for this client.
func (p *Plain) OnClientAddress(addr string) {
	p.println("your address: " + addr)
}
