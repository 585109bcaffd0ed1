package game

import (
	"errors"
	"fmt"
	"strings"
)

// Keys is the number of control channels a command carries (Q, W, O, P).
const Keys = 4

var ErrCommandLength = errors.New("command must have exactly 4 keys")

// Command is one combination of held keys, stored as a bitmask.
type Command uint8

const (
	keyQ Command = 1 << iota
	keyW
	keyO
	keyP
)

const (
	None Command = 0
	Q            = keyQ
	W            = keyW
	O            = keyO
	P            = keyP
	QW           = keyQ | keyW
	QO           = keyQ | keyO
	QP           = keyQ | keyP
	WO           = keyW | keyO
	WP           = keyW | keyP
	OP           = keyO | keyP
	QWO          = keyQ | keyW | keyO
	QWP          = keyQ | keyW | keyP
	QOP          = keyQ | keyO | keyP
	WOP          = keyW | keyO | keyP
	QWOP         = keyQ | keyW | keyO | keyP
)

// NewCommand builds a command from individual key states.
func NewCommand(q, w, o, p bool) Command {
	var c Command
	if q {
		c |= keyQ
	}
	if w {
		c |= keyW
	}
	if o {
		c |= keyO
	}
	if p {
		c |= keyP
	}
	return c
}

// CommandFromKeys converts a [q, w, o, p] slice into a command.
func CommandFromKeys(keys []bool) (Command, error) {
	if len(keys) != Keys {
		return None, fmt.Errorf("%w: got %d", ErrCommandLength, len(keys))
	}
	return NewCommand(keys[0], keys[1], keys[2], keys[3]), nil
}

func (c Command) Q() bool { return c&keyQ != 0 }
func (c Command) W() bool { return c&keyW != 0 }
func (c Command) O() bool { return c&keyO != 0 }
func (c Command) P() bool { return c&keyP != 0 }

// Keys returns the command as a [q, w, o, p] slice.
func (c Command) Keys() []bool {
	return []bool{c.Q(), c.W(), c.O(), c.P()}
}

func (c Command) String() string {
	if c == None {
		return "NONE"
	}
	var b strings.Builder
	for i, name := range "QWOP" {
		if c&(1<<i) != 0 {
			b.WriteRune(name)
		}
	}
	return b.String()
}

// ParseCommand is the inverse of Command.String.
func ParseCommand(s string) (Command, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "NONE" || s == "" {
		return None, nil
	}
	var c Command
	for _, r := range s {
		idx := strings.IndexRune("QWOP", r)
		if idx < 0 {
			return None, fmt.Errorf("unknown key %q in command %q", r, s)
		}
		c |= 1 << idx
	}
	return c, nil
}
