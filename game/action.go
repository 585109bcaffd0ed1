package game

import "fmt"

// Action holds a command for a fixed number of timesteps. The cursor tracks
// how many of those timesteps have been executed.
type Action struct {
	command  Command
	duration int
	cursor   int
}

func NewAction(duration int, command Command) Action {
	if duration < 1 {
		panic(fmt.Sprintf("action duration must be at least 1, got %d", duration))
	}
	return Action{command: command, duration: duration}
}

func (a Action) Command() Command { return a.command }

func (a Action) Duration() int { return a.duration }

// Remaining is the number of timesteps not yet polled.
func (a Action) Remaining() int { return a.duration - a.cursor }

func (a Action) HasNext() bool { return a.cursor < a.duration }

// Poll returns the command for the next timestep and advances the cursor.
func (a *Action) Poll() Command {
	if !a.HasNext() {
		panic(fmt.Sprintf("action %s has no timesteps remaining", a))
	}
	a.cursor++
	return a.command
}

func (a *Action) Reset() { a.cursor = 0 }

// Copy returns an independent action with a fresh cursor.
func (a Action) Copy() Action {
	return Action{command: a.command, duration: a.duration}
}

// Equal compares command and duration only.
func (a Action) Equal(other Action) bool {
	return a.command == other.command && a.duration == other.duration
}

func (a Action) String() string {
	return fmt.Sprintf("%s:%d", a.command, a.duration)
}

// Timesteps sums the durations of a sequence of actions.
func Timesteps(actions []Action) int {
	total := 0
	for _, a := range actions {
		total += a.duration
	}
	return total
}
