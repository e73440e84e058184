package handler

import (
	"strings"

	"gemini-image-bot/internal/config"
)

// Command is the classification of an inbound text message
type Command int

const (
	CmdNone Command = iota
	CmdGenerate
	CmdEdit
	CmdMerge
	CmdReverse
	CmdAnalyze
	CmdTranslate
	CmdExit
	CmdContinue
)

// Match is a classified message: the command, the prefix that matched (for
// usage hints) and the remaining prompt text
type Match struct {
	Command Command
	Prefix  string
	Prompt  string
}

// Router matches message text against the configured command prefix lists.
// Matching is prefix-exact and case-sensitive.
type Router struct {
	commands config.CommandsConfig
}

// NewRouter creates a router over the configured command strings
func NewRouter(commands config.CommandsConfig) *Router {
	return &Router{commands: commands}
}

// Classify maps trimmed message text to a command. Exit and translate
// commands must match the whole message; the other commands are prefixes
// whose remainder becomes the prompt. Un-prefixed text is a continuation
// only when an active conversation exists, otherwise it is passed through.
func (r *Router) Classify(text string, hasActiveSession bool) Match {
	text = strings.TrimSpace(text)
	if text == "" {
		return Match{Command: CmdNone}
	}

	for _, cmd := range r.commands.Exit {
		if text == cmd {
			return Match{Command: CmdExit, Prefix: cmd}
		}
	}
	for _, cmd := range r.commands.Translate {
		if text == cmd {
			return Match{Command: CmdTranslate, Prefix: cmd}
		}
	}

	prefixLists := []struct {
		command  Command
		prefixes []string
	}{
		{CmdGenerate, r.commands.Generate},
		{CmdEdit, r.commands.Edit},
		{CmdMerge, r.commands.Merge},
		{CmdReverse, r.commands.Reverse},
		{CmdAnalyze, r.commands.Analyze},
	}
	for _, list := range prefixLists {
		for _, prefix := range list.prefixes {
			if strings.HasPrefix(text, prefix) {
				return Match{
					Command: list.command,
					Prefix:  prefix,
					Prompt:  strings.TrimSpace(text[len(prefix):]),
				}
			}
		}
	}

	if hasActiveSession {
		return Match{Command: CmdContinue, Prompt: text}
	}
	return Match{Command: CmdNone}
}
