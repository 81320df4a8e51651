package main

import (
	"context"
	"strings"
	"sync"
)

// fakeShell records device shell commands and answers them from reply.
type fakeShell struct {
	mu    sync.Mutex
	cmds  []string
	reply func(cmd string) (string, error)
}

func newFakeShell(reply func(cmd string) (string, error)) *fakeShell {
	return &fakeShell{reply: reply}
}

func (f *fakeShell) Shell(ctx context.Context, cmd string) (string, error) {
	f.mu.Lock()
	f.cmds = append(f.cmds, cmd)
	reply := f.reply
	f.mu.Unlock()
	if reply == nil {
		return "", nil
	}
	return reply(cmd)
}

func (f *fakeShell) commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cmds...)
}

// commandsWithPrefix returns the recorded commands starting with prefix.
func (f *fakeShell) commandsWithPrefix(prefix string) []string {
	var out []string
	for _, c := range f.commands() {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}
