package engine

import "sync"

// Command is work handed to the scheduler's owning goroutine.
type Command func(s *Scheduler)

// commandQueue is a thread-safe FIFO of commands.
//
// Other goroutines Submit; the owner drains between ticks. The signal
// channel lets Run wait on new commands and a timer in one select.
type commandQueue struct {
	mu       sync.Mutex
	commands []Command
	closed   bool
	signal   chan struct{} // buffered, size 1
}

func newCommandQueue() *commandQueue {
	return &commandQueue{
		commands: make([]Command, 0, 16),
		signal:   make(chan struct{}, 1),
	}
}

// Enqueue adds a command. Returns false if the queue is closed.
func (q *commandQueue) Enqueue(c Command) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.commands = append(q.commands, c)

	// Non-blocking: the buffer of 1 coalesces signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TakeAll removes and returns every queued command in FIFO order.
func (q *commandQueue) TakeAll() []Command {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.commands) == 0 {
		return nil
	}
	out := q.commands
	q.commands = make([]Command, 0, cap(out))
	return out
}

// Wait returns a channel that receives when commands may be available.
func (q *commandQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of queued commands.
func (q *commandQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.commands)
}

// Close rejects further commands. Queued commands are dropped.
func (q *commandQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	q.commands = nil
	close(q.signal)
}
