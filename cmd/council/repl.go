package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/PabloGalante/justice-council/internal/app/conversation"
	"github.com/PabloGalante/justice-council/internal/app/persona"
	"github.com/PabloGalante/justice-council/internal/domain"
)

const helpText = `Commands:
  /agents          list the council
  /toggle <name>   switch an agent on or off
  /advocate        create your own advocate
  /new             forget this conversation and start another
  /quit            leave`

type theme struct {
	title    lipgloss.Style
	user     lipgloss.Style
	notice   lipgloss.Style
	degraded lipgloss.Style
	speakers []lipgloss.Style
}

func newTheme(color bool) theme {
	if !color {
		plain := lipgloss.NewStyle()
		return theme{title: plain, user: plain, notice: plain, degraded: plain, speakers: []lipgloss.Style{plain}}
	}

	speaker := func(c string) lipgloss.Style {
		return lipgloss.NewStyle().Foreground(lipgloss.Color(c)).Bold(true)
	}
	return theme{
		title: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#f3f3ff")).
			Background(lipgloss.Color("#1b0f35")).
			Bold(true).
			Padding(0, 1),
		user:     speaker("#f3f3ff"),
		notice:   lipgloss.NewStyle().Foreground(lipgloss.Color("#9ca3d8")).Italic(true),
		degraded: lipgloss.NewStyle().Foreground(lipgloss.Color("#ff5c8a")).Italic(true),
		speakers: []lipgloss.Style{
			speaker("#01cdfe"),
			speaker("#05ffa1"),
			speaker("#ff71ce"),
			speaker("#fffb96"),
			speaker("#b967ff"),
		},
	}
}

type repl struct {
	svc     *conversation.Service
	in      *bufio.Scanner
	lines   <-chan string
	scanErr chan error
	out     io.Writer
	theme   theme
	session domain.SessionID
	colors  map[string]lipgloss.Style
}

func newREPL(svc *conversation.Service, in io.Reader, out io.Writer, th theme) *repl {
	return &repl{
		svc:     svc,
		in:      bufio.NewScanner(in),
		scanErr: make(chan error, 1),
		out:     out,
		theme:   th,
		colors:  map[string]lipgloss.Style{},
	}
}

// run reads commands until /quit, end of input or ctx is done. Input is
// scanned on its own goroutine so a cancelled ctx does not wait for Enter.
func (r *repl) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	r.lines = r.scan(ctx)

	fmt.Fprintln(r.out, r.theme.title.Render("The Council of Justice"))
	fmt.Fprintln(r.out, r.theme.notice.Render(helpText))
	r.printAgents()

	for {
		line, ok := r.prompt(ctx, "> ")
		if !ok {
			if ctx.Err() != nil {
				return nil
			}
			return <-r.scanErr
		}
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if quit := r.command(ctx, line); quit {
				return nil
			}
			continue
		}
		r.submit(ctx, line)
	}
}

func (r *repl) scan(ctx context.Context) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		for r.in.Scan() {
			select {
			case lines <- r.in.Text():
			case <-ctx.Done():
				return
			}
		}
		r.scanErr <- r.in.Err()
	}()
	return lines
}

func (r *repl) prompt(ctx context.Context, label string) (string, bool) {
	fmt.Fprint(r.out, label)
	select {
	case <-ctx.Done():
		fmt.Fprintln(r.out)
		return "", false
	case line, ok := <-r.lines:
		if !ok {
			return "", false
		}
		return strings.TrimSpace(line), true
	}
}

func (r *repl) command(ctx context.Context, line string) (quit bool) {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/quit", "/exit":
		r.endSession(ctx)
		return true
	case "/agents":
		r.printAgents()
	case "/toggle":
		r.toggle(arg)
	case "/advocate":
		r.advocate(ctx)
	case "/new":
		r.endSession(ctx)
		r.notice("Started a new conversation.")
	case "/help":
		r.notice(helpText)
	default:
		r.notice(fmt.Sprintf("Unknown command %s. Type /help.", name))
	}
	return false
}

func (r *repl) submit(ctx context.Context, text string) {
	out, err := r.svc.Submit(ctx, conversation.SubmitInput{SessionID: r.session, Text: text})
	if err != nil {
		r.notice("The council could not record this exchange: " + err.Error())
		return
	}
	r.session = out.SessionID

	if out.Notice != "" {
		r.notice(out.Notice)
		return
	}
	for _, e := range out.Transcript {
		if e.Speaker == domain.UserSpeaker {
			continue
		}
		content := e.Content
		if e.Degraded {
			content = r.theme.degraded.Render(content)
		}
		fmt.Fprintf(r.out, "%s: %s\n\n", r.speakerStyle(e.Speaker).Render(e.Speaker), content)
	}
}

func (r *repl) speakerStyle(name string) lipgloss.Style {
	if st, ok := r.colors[name]; ok {
		return st
	}
	st := r.theme.speakers[len(r.colors)%len(r.theme.speakers)]
	r.colors[name] = st
	return st
}

func (r *repl) printAgents() {
	for _, a := range r.svc.Agents() {
		mark := "○"
		if a.Active {
			mark = "●"
		}
		label := a.Name
		if a.Custom {
			label += " (your advocate)"
		}
		fmt.Fprintf(r.out, "  %s %s\n", mark, r.speakerStyle(a.Name).Render(label))
	}
}

func (r *repl) toggle(name string) {
	if name == "" {
		r.notice("Usage: /toggle <name>")
		return
	}
	for _, a := range r.svc.Agents() {
		if strings.EqualFold(a.Name, name) {
			notice, err := r.svc.SetActive(a.Name, !a.Active)
			if err != nil {
				r.notice(err.Error())
				return
			}
			r.notice(notice)
			return
		}
	}
	r.notice(fmt.Sprintf("No agent named %q.", name))
}

func (r *repl) advocate(ctx context.Context) {
	var a persona.Advocate
	questions := []struct {
		label string
		dst   *string
	}{
		{"Name of your justice framework: ", &a.Framework},
		{"Define it in a sentence: ", &a.Definition},
		{"Its core values: ", &a.Values},
		{"Its tone of voice: ", &a.Tone},
	}

	for _, q := range questions {
		answer, ok := r.prompt(ctx, q.label)
		if !ok {
			return
		}
		*q.dst = answer
	}

	ag, err := r.svc.RegisterPersona(ctx, conversation.RegisterInput{Custom: true, Advocate: &a})
	if errors.Is(err, domain.ErrInvalidPersona) {
		r.notice("All four answers are needed to create an advocate.")
		return
	}
	if err != nil {
		r.notice(err.Error())
		return
	}
	r.notice(ag.Name() + " joined the council and will speak first.")
}

func (r *repl) endSession(ctx context.Context) {
	if r.session == "" {
		return
	}
	if err := r.svc.EndSession(ctx, r.session); err != nil {
		r.notice("Could not forget the conversation: " + err.Error())
	}
	r.session = ""
}

func (r *repl) notice(msg string) {
	fmt.Fprintln(r.out, r.theme.notice.Render(msg))
}
