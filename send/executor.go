package send

// Executor serialises work for one stream onto a single logical thread
// of execution, the same role a strand/single-threaded io_service plays
// for the original scheduler: every task posted to it runs after the
// previous one returns, never concurrently with it. The scheduler relies
// on this so that its advance steps and completion callbacks run one at
// a time, in the order they were posted.
type Executor interface {
	// Post schedules fn to run later, not from inside the caller's own
	// stack frame. A correct Executor must never invoke fn synchronously,
	// since the scheduler posts from contexts that already hold its lock.
	Post(fn func())
}

// queueExecutor is a FIFO task queue drained by exactly one worker
// goroutine, which gives callers the strand guarantee (no two posted
// tasks ever run concurrently, and Post never executes fn on the
// caller's own stack) without requiring a caller-supplied thread pool.
// Construct with NewExecutor.
type queueExecutor struct {
	tasks chan func()
	done  chan struct{}
}

// NewExecutor starts a worker goroutine draining a FIFO task queue of
// depth backlog and returns the Executor handle. Call Close to stop the
// worker once the stream using it is torn down.
func NewExecutor(backlog int) *queueExecutor {
	e := &queueExecutor{
		tasks: make(chan func(), backlog),
		done:  make(chan struct{}),
	}
	go e.run()
	return e
}

func (e *queueExecutor) run() {
	for {
		select {
		case fn := <-e.tasks:
			fn()
		case <-e.done:
			return
		}
	}
}

func (e *queueExecutor) Post(fn func()) {
	e.tasks <- fn
}

// Close stops the worker goroutine. Tasks already queued but not yet run
// are discarded.
func (e *queueExecutor) Close() {
	close(e.done)
}
