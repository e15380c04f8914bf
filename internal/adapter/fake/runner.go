package fake

import (
	"sync"

	"bundlesync/sequence"
)

var _ sequence.TaskRunner = (*Runner)(nil)

// Scheduler drives a set of Runners from the test goroutine so that
// cross-sequence interleavings are deterministic.
type Scheduler struct {
	mu      sync.Mutex
	runners []*Runner
}

func NewScheduler() *Scheduler {
	return &Scheduler{}
}

// Runner creates a new sequence owned by the scheduler.
func (s *Scheduler) Runner(name string) *Runner {
	r := &Runner{name: name}
	s.mu.Lock()
	s.runners = append(s.runners, r)
	s.mu.Unlock()
	return r
}

// RunUntilIdle runs tasks round-robin across runners, one task per runner per
// pass, until every queue is empty. It returns the number of tasks run.
func (s *Scheduler) RunUntilIdle() int {
	total := 0
	for {
		s.mu.Lock()
		runners := append([]*Runner(nil), s.runners...)
		s.mu.Unlock()

		ran := 0
		for _, r := range runners {
			if r.runOne() {
				ran++
			}
		}
		if ran == 0 {
			return total
		}
		total += ran
	}
}

// Runner is a manually pumped task queue.
type Runner struct {
	name string

	mu       sync.Mutex
	queue    []fakeTask
	shutdown bool
	posted   int
	dropped  int
}

func (r *Runner) Name() string { return r.name }

type fakeTask struct {
	run     func()
	release func()
}

func (r *Runner) PostTask(task func()) bool {
	return r.PostTaskWithRelease(task, nil)
}

// PostTaskWithRelease queues task; release runs instead if the runner refuses
// the task or shuts down before running it.
func (r *Runner) PostTaskWithRelease(task, release func()) bool {
	r.mu.Lock()
	if r.shutdown {
		r.dropped++
		r.mu.Unlock()
		if release != nil {
			release()
		}
		return false
	}
	r.queue = append(r.queue, fakeTask{run: task, release: release})
	r.posted++
	r.mu.Unlock()
	return true
}

// RunPending runs the tasks queued at the time of the call. Tasks they post
// stay queued.
func (r *Runner) RunPending() int {
	r.mu.Lock()
	n := len(r.queue)
	r.mu.Unlock()

	ran := 0
	for range n {
		if !r.runOne() {
			break
		}
		ran++
	}
	return ran
}

func (r *Runner) runOne() bool {
	r.mu.Lock()
	if len(r.queue) == 0 {
		r.mu.Unlock()
		return false
	}
	task := r.queue[0]
	r.queue[0] = fakeTask{}
	r.queue = r.queue[1:]
	r.mu.Unlock()

	task.run()
	return true
}

// Shutdown drops every queued task, running its release function, and
// refuses further posts.
func (r *Runner) Shutdown() {
	r.mu.Lock()
	r.shutdown = true
	dropped := r.queue
	r.dropped += len(dropped)
	r.queue = nil
	r.mu.Unlock()

	for _, t := range dropped {
		if t.release != nil {
			t.release()
		}
	}
}

// Pending returns the number of queued tasks.
func (r *Runner) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue)
}

// Posted returns the number of accepted posts.
func (r *Runner) Posted() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.posted
}

// Dropped returns the number of refused posts plus tasks discarded at shutdown.
func (r *Runner) Dropped() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}
