package game

// ActionQueue executes a sequence of actions one timestep at a time.
type ActionQueue struct {
	actions  []Action
	current  int
	executed int
}

func NewActionQueue(actions ...Action) *ActionQueue {
	q := &ActionQueue{}
	q.AddSequence(actions)
	return q
}

// Add appends a copy of the action with its cursor reset.
func (q *ActionQueue) Add(a Action) {
	q.actions = append(q.actions, a.Copy())
}

func (q *ActionQueue) AddSequence(actions []Action) {
	for _, a := range actions {
		q.Add(a)
	}
}

func (q *ActionQueue) IsEmpty() bool {
	for i := q.current; i < len(q.actions); i++ {
		if q.actions[i].HasNext() {
			return false
		}
	}
	return true
}

// PollCommand returns the command for the next timestep.
func (q *ActionQueue) PollCommand() Command {
	for q.current < len(q.actions) && !q.actions[q.current].HasNext() {
		q.current++
	}
	if q.current >= len(q.actions) {
		panic("polled an empty action queue")
	}
	q.executed++
	return q.actions[q.current].Poll()
}

// Peek returns the action currently being executed.
func (q *ActionQueue) Peek() (Action, bool) {
	for i := q.current; i < len(q.actions); i++ {
		if q.actions[i].HasNext() {
			return q.actions[i], true
		}
	}
	return Action{}, false
}

// Executed is the number of timesteps polled since the last Clear.
func (q *ActionQueue) Executed() int { return q.executed }

// Actions returns a copy of every queued action, executed or not.
func (q *ActionQueue) Actions() []Action {
	out := make([]Action, len(q.actions))
	for i, a := range q.actions {
		out[i] = a.Copy()
	}
	return out
}

func (q *ActionQueue) Clear() {
	q.actions = q.actions[:0]
	q.current = 0
	q.executed = 0
}
