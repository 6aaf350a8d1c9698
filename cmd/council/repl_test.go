package main

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/justice-council/internal/adapters/llm"
	"github.com/PabloGalante/justice-council/internal/adapters/storage/memory"
	"github.com/PabloGalante/justice-council/internal/app/conversation"
	"github.com/PabloGalante/justice-council/internal/app/persona"
	"github.com/PabloGalante/justice-council/internal/domain"
)

func runScript(t *testing.T, script string) (string, *memory.TurnStore, *conversation.Service) {
	t.Helper()

	store := memory.NewTurnStore(nil)
	svc, err := conversation.NewService(store, conversation.Generators{Default: llm.NewMock()}, persona.Builtins(), conversation.Options{Window: domain.DefaultWindow})
	require.NoError(t, err)

	var out bytes.Buffer
	r := newREPL(svc, strings.NewReader(script), &out, newTheme(false))
	require.NoError(t, r.run(context.Background()))
	return out.String(), store, svc
}

func TestREPLChatAndQuit(t *testing.T) {
	out, _, _ := runScript(t, "Is punishment ever justified?\n/quit\nignored after quit\n")

	assert.Contains(t, out, "Dr. Sam Iqbal: User, I hear you say")
	assert.Contains(t, out, "Jordan Chex: Dr. Sam Iqbal, I hear you say")
	assert.NotContains(t, out, "ignored after quit")
}

func TestREPLNewForgetsConversation(t *testing.T) {
	ctx := context.Background()
	store := memory.NewTurnStore(nil)
	svc, err := conversation.NewService(store, conversation.Generators{Default: llm.NewMock()}, persona.Builtins(), conversation.Options{Window: domain.DefaultWindow})
	require.NoError(t, err)

	var out bytes.Buffer
	r := newREPL(svc, strings.NewReader("hello\n"), &out, newTheme(false))
	require.NoError(t, r.run(ctx))
	sid := r.session
	require.NotEmpty(t, sid)

	r.command(ctx, "/new")
	assert.Empty(t, r.session)

	turns, err := store.Recent(ctx, sid, domain.DefaultWindow)
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestREPLToggle(t *testing.T) {
	out, _, svc := runScript(t, "/toggle amara ndlovu\n/toggle nobody\n")

	assert.Contains(t, out, "Amara Ndlovu left the council.")
	assert.Contains(t, out, `No agent named "nobody".`)
	for _, a := range svc.Agents() {
		if a.Name == "Amara Ndlovu" {
			assert.False(t, a.Active)
		}
	}
}

func TestREPLAdvocate(t *testing.T) {
	out, _, svc := runScript(t, "/advocate\nCare Ethics\nJustice grows from care.\nempathy\ngentle\nhello\n/agents\n")

	assert.Contains(t, out, "Care Ethics joined the council and will speak first.")
	assert.Contains(t, out, "Care Ethics (your advocate)")

	agents := svc.Agents()
	require.Len(t, agents, 5)
	assert.True(t, agents[4].Custom)

	first := strings.Index(out, "Care Ethics: User")
	second := strings.Index(out, "Dr. Sam Iqbal: Care Ethics")
	require.NotEqual(t, -1, first, out)
	assert.Less(t, first, second)
}

func TestREPLIncompleteAdvocate(t *testing.T) {
	out, _, svc := runScript(t, "/advocate\nCare Ethics\n\nempathy\ngentle\n")

	assert.Contains(t, out, "All four answers are needed")
	assert.Len(t, svc.Agents(), 4)
}

func TestREPLNoAgents(t *testing.T) {
	script := "/toggle Dr. Sam Iqbal\n/toggle Amara Ndlovu\n/toggle Jamie Reyes\n/toggle Jordan Chex\nhello\n"
	out, _, _ := runScript(t, script)
	assert.Contains(t, out, "No agents are active.")
}

func TestREPLUnknownCommand(t *testing.T) {
	out, _, _ := runScript(t, "/dance\n")
	assert.Contains(t, out, "Unknown command /dance.")
}

func TestREPLStopsWhenContextIsCancelled(t *testing.T) {
	svc, err := conversation.NewService(memory.NewTurnStore(nil), conversation.Generators{Default: llm.NewMock()}, persona.Builtins(), conversation.Options{Window: domain.DefaultWindow})
	require.NoError(t, err)

	// nothing is ever written, so the scanner blocks like an idle terminal
	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	var out bytes.Buffer
	r := newREPL(svc, pr, &out, newTheme(false))

	done := make(chan error, 1)
	go func() { done <- r.run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not return after cancellation")
	}
}
