package alert

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
)

// bell is the ASCII BEL control character.
const bell = "\a"

// CommandPlayer plays File with an external player such as paplay or aplay.
// Without a file or player it rings the terminal bell instead.
type CommandPlayer struct {
	Player string
	File   string

	// Bell receives the fallback BEL; defaults to stderr.
	Bell io.Writer

	lookPath func(string) (string, error)
}

// NewCommandPlayer returns a player for file using the named command.
func NewCommandPlayer(player, file string) *CommandPlayer {
	return &CommandPlayer{Player: player, File: file}
}

// Play runs the player and waits for it to finish.
func (p *CommandPlayer) Play(ctx context.Context) error {
	if p.File == "" || p.Player == "" {
		return p.ring()
	}

	lookPath := p.lookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	path, err := lookPath(p.Player)
	if err != nil {
		if rerr := p.ring(); rerr != nil {
			return rerr
		}
		return fmt.Errorf("sound player %s not found: %w", p.Player, err)
	}

	if err := exec.CommandContext(ctx, path, p.File).Run(); err != nil {
		return fmt.Errorf("playing %s: %w", p.File, err)
	}
	return nil
}

func (p *CommandPlayer) ring() error {
	w := p.Bell
	if w == nil {
		w = os.Stderr
	}
	_, err := io.WriteString(w, bell)
	return err
}
