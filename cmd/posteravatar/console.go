package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/normanking/posteravatar/internal/chat"
	"github.com/normanking/posteravatar/internal/logging"
)

type commandKind int

const (
	cmdSay commandKind = iota
	cmdClear
	cmdReplay
	cmdModel
	cmdQuit
	cmdLog
	cmdHelp
	cmdUnknown
)

type command struct {
	kind commandKind
	arg  string
}

// parseCommand interprets one line of terminal input. Lines not starting with a slash
// are chat messages.
func parseCommand(line string) command {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return command{kind: cmdSay, arg: line}
	}
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch strings.ToLower(name) {
	case "/clear":
		return command{kind: cmdClear}
	case "/replay":
		return command{kind: cmdReplay}
	case "/model":
		return command{kind: cmdModel, arg: arg}
	case "/quit", "/exit":
		return command{kind: cmdQuit}
	case "/log":
		return command{kind: cmdLog, arg: arg}
	case "/help":
		return command{kind: cmdHelp}
	}
	return command{kind: cmdUnknown, arg: name}
}

const consoleHelp = `commands:
  /clear         forget the conversation
  /replay        hear the last reply again
  /model <url>   swap the character model
  /log [n]       show the last n log lines (default 20)
  /quit          close the viewer
anything else is sent as a message`

const defaultLogLines = 20

// console reads commands from in and prints the transcript to out.
type console struct {
	out   io.Writer
	st    styles
	orch  *chat.Orchestrator
	logs  *logging.Logger
	model func(url string)
	quit  func()

	mu      sync.Mutex
	printed int
	pending bool
}

func newConsole(out io.Writer, orch *chat.Orchestrator, logs *logging.Logger, model func(string), quit func()) *console {
	return &console{
		out:   out,
		st:    newStyles(out),
		orch:  orch,
		logs:  logs,
		model: model,
		quit:  quit,
	}
}

func (c *console) notice(format string, args ...any) {
	fmt.Fprintln(c.out, c.st.notice.Render(fmt.Sprintf(format, args...)))
}

// showTranscript prints entries committed since the last call, plus a marker for a
// reply that is being narrated.
func (c *console) showTranscript(s chat.State) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(s.Transcript) < c.printed {
		c.notice("-- conversation cleared --")
		c.printed = 0
	}
	for _, e := range s.Transcript[c.printed:] {
		if e.Role == chat.RoleAssistant {
			fmt.Fprintln(c.out, c.st.stamp.Render("["+e.Timestamp.Format("15:04")+"]"),
				c.st.avatar.Render("avatar:"), e.Text)
		}
	}
	c.printed = len(s.Transcript)

	if s.Pending != nil && !c.pending {
		fmt.Fprintln(c.out, c.st.stamp.Render("["+s.Pending.Timestamp.Format("15:04")+"]"),
			c.st.speaking.Render("avatar (speaking):"), s.Pending.Text)
	}
	c.pending = s.Pending != nil
}

// run processes lines until in is exhausted or ctx is done.
func (c *console) run(ctx context.Context, in io.Reader) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		c.handle(ctx, parseCommand(scanner.Text()))
	}
}

func (c *console) handle(ctx context.Context, cmd command) {
	switch cmd.kind {
	case cmdSay:
		if cmd.arg == "" {
			return
		}
		go func() {
			err := c.orch.SendMessage(ctx, cmd.arg)
			if errors.Is(err, chat.ErrBusy) {
				c.notice("(still thinking about the last one)")
			}
		}()
	case cmdClear:
		c.orch.Clear()
	case cmdReplay:
		if err := c.orch.ReplayNarration(); err != nil {
			c.notice("(nothing to replay)")
		}
	case cmdModel:
		if cmd.arg == "" {
			c.notice("usage: /model <path or url>")
			return
		}
		c.model(cmd.arg)
	case cmdQuit:
		c.quit()
	case cmdLog:
		c.showLog(cmd.arg)
	case cmdHelp:
		fmt.Fprintln(c.out, consoleHelp)
	default:
		c.notice("unknown command %s, try /help", cmd.arg)
	}
}

// showLog prints the most recent log history entries.
func (c *console) showLog(arg string) {
	if c.logs == nil {
		c.notice("(no log history)")
		return
	}
	n := defaultLogLines
	if arg != "" {
		v, err := strconv.Atoi(arg)
		if err != nil || v <= 0 {
			c.notice("usage: /log [n]")
			return
		}
		n = v
	}

	if path := c.logs.GetLogPath(); path != "" {
		c.notice("log file: %s", path)
	}
	for _, e := range c.logs.GetHistory(n) {
		line := []string{c.st.stamp.Render(e.Timestamp), c.st.level(e.Level)}
		if e.Component != "" {
			line = append(line, c.st.label.Render(e.Component))
		}
		line = append(line, e.Message)
		if e.Data != "" {
			line = append(line, c.st.notice.Render(e.Data))
		}
		fmt.Fprintln(c.out, strings.Join(line, " "))
	}
}
