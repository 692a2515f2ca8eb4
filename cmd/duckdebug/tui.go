package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/MrWong99/duckdebug/internal/interaction"
	"github.com/MrWong99/duckdebug/pkg/api"
)

// commandKind enumerates what a line typed at the prompt asks for.
type commandKind int

const (
	cmdToggle commandKind = iota
	cmdAsk
	cmdTab
	cmdUpload
	cmdRefresh
	cmdVoices
	cmdState
	cmdHelp
	cmdQuit
)

type command struct {
	kind commandKind
	arg  string
}

var errUnknownCommand = errors.New("unknown command, type /help")

const helpText = `Enter          start or stop recording
/ask <text>    ask a typed question
/tab code|uml  switch the content panel
/upload <dir>  index the Python files below dir
/refresh       rebuild the backend index
/voices        list the voices the backend can speak with
/state         print the full state
/quit          exit`

// parseCommand interprets one input line. An empty line toggles the
// microphone.
func parseCommand(line string) (command, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return command{kind: cmdToggle}, nil
	}
	if !strings.HasPrefix(line, "/") {
		return command{kind: cmdAsk, arg: line}, nil
	}
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch name {
	case "/ask":
		if arg == "" {
			return command{}, errors.New("usage: /ask <question>")
		}
		return command{kind: cmdAsk, arg: arg}, nil
	case "/tab":
		if arg == "" {
			return command{}, errors.New("usage: /tab code|uml")
		}
		return command{kind: cmdTab, arg: strings.ToLower(arg)}, nil
	case "/upload":
		if arg == "" {
			return command{}, errors.New("usage: /upload <dir>")
		}
		return command{kind: cmdUpload, arg: arg}, nil
	case "/refresh":
		return command{kind: cmdRefresh}, nil
	case "/voices":
		return command{kind: cmdVoices}, nil
	case "/state":
		return command{kind: cmdState}, nil
	case "/help", "/?":
		return command{kind: cmdHelp}, nil
	case "/quit", "/exit", "/q":
		return command{kind: cmdQuit}, nil
	}
	return command{}, fmt.Errorf("%w: %s", errUnknownCommand, name)
}

var modeIcons = map[interaction.Mode]string{
	interaction.ModeIdle:      "🦆",
	interaction.ModeRecording: "🎙️",
	interaction.ModeThinking:  "💭",
	interaction.ModeTalking:   "🗣️",
}

// renderer prints state changes. Only the parts that differ from the
// previously rendered state are written.
type renderer struct {
	w    io.Writer
	last interaction.State
	init bool
}

func newRenderer(w io.Writer) *renderer { return &renderer{w: w} }

func (r *renderer) render(s interaction.State) {
	prev := r.last
	first := !r.init
	r.last, r.init = s, true

	if first || s.Mode() != prev.Mode() || s.BubbleText != prev.BubbleText {
		fmt.Fprintf(r.w, "%s [%s] %s\n", modeIcons[s.Mode()], s.Mode(), s.BubbleText)
	}
	if s.Transcript != "" && (first || s.Transcript != prev.Transcript) {
		fmt.Fprintf(r.w, "   you: %s\n", s.Transcript)
	}
	if first || s.ActiveTab != prev.ActiveTab || s.ActiveContent() != prev.ActiveContent() {
		r.panel(s)
	}
}

func (r *renderer) panel(s interaction.State) {
	fmt.Fprintf(r.w, "── %s ──\n%s\n──────────\n", strings.ToUpper(string(s.ActiveTab)), s.ActiveContent())
}

// dump prints every field regardless of what changed.
func (r *renderer) dump(s interaction.State) {
	fmt.Fprintf(r.w, "mode=%s recording=%t thinking=%t talking=%t tab=%s\n",
		s.Mode(), s.IsRecording, s.IsThinking, s.IsTalking, s.ActiveTab)
	fmt.Fprintf(r.w, "bubble: %s\n", s.BubbleText)
	if s.Transcript != "" {
		fmt.Fprintf(r.w, "transcript: %s\n", s.Transcript)
	}
	r.panel(s)
}

// formatVoices renders the voice list with the active voice marked.
func formatVoices(voices []api.Voice) string {
	if len(voices) == 0 {
		return "The backend offers no voices."
	}
	var b strings.Builder
	for _, v := range voices {
		mark := "  "
		if v.Selected {
			mark = "* "
		}
		fmt.Fprintf(&b, "%s%-24s %s\n", mark, v.ID, v.Name)
	}
	return strings.TrimRight(b.String(), "\n")
}
