// Package schedule runs jobs at wall-clock times from a min-heap of
// pending tasks drained by a fixed worker pool.
package schedule

import (
	"container/heap"
	"errors"
	"sync"
	"time"
)

// ErrStopped is returned when scheduling on a stopped Scheduler
var ErrStopped = errors.New("scheduler is stopped")

// Task is a job due at RunAt
type Task struct {
	ID    string
	RunAt time.Time
	Run   func()
	index int // position in the heap
}

// taskHeap is a min-heap of tasks ordered by RunAt
type taskHeap []*Task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	return h[i].RunAt.Before(h[j].RunAt)
}

func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *taskHeap) Push(x interface{}) {
	task := x.(*Task)
	task.index = len(*h)
	*h = append(*h, task)
}

func (h *taskHeap) Pop() interface{} {
	old := *h
	n := len(old)
	task := old[n-1]
	old[n-1] = nil
	task.index = -1
	*h = old[:n-1]
	return task
}

// Scheduler dispatches due tasks to its workers
type Scheduler struct {
	mu      sync.Mutex
	heap    taskHeap
	tasks   map[string]*Task
	wakeup  chan struct{}
	due     chan *Task
	workers int
	wg      sync.WaitGroup
	stopped bool
	stopCh  chan struct{}
}

// New creates a scheduler with the given number of workers
func New(workers int) *Scheduler {
	if workers < 1 {
		workers = 1
	}
	s := &Scheduler{
		heap:    make(taskHeap, 0),
		tasks:   make(map[string]*Task),
		wakeup:  make(chan struct{}, 1),
		due:     make(chan *Task),
		workers: workers,
		stopCh:  make(chan struct{}),
	}
	heap.Init(&s.heap)
	return s
}

// Start launches the dispatch loop and workers
func (s *Scheduler) Start() {
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
	s.wg.Add(1)
	go s.run()
}

// Stop halts dispatching and waits for running tasks to return
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
}

// Schedule registers run under id, replacing any task with the same id
func (s *Scheduler) Schedule(id string, runAt time.Time, run func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrStopped
	}

	if existing, ok := s.tasks[id]; ok {
		heap.Remove(&s.heap, existing.index)
		delete(s.tasks, id)
	}

	task := &Task{ID: id, RunAt: runAt, Run: run}
	heap.Push(&s.heap, task)
	s.tasks[id] = task

	if s.heap[0] == task {
		select {
		case s.wakeup <- struct{}{}:
		default:
		}
	}
	return nil
}

// Cancel removes a pending task
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return false
	}
	heap.Remove(&s.heap, task.index)
	delete(s.tasks, id)
	return true
}

// Next returns the run time of a pending task
func (s *Scheduler) Next(id string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return time.Time{}, false
	}
	return task.RunAt, true
}

func (s *Scheduler) run() {
	defer s.wg.Done()

	for {
		s.mu.Lock()
		if s.stopped {
			s.mu.Unlock()
			return
		}

		wait := 24 * time.Hour
		if s.heap.Len() > 0 {
			wait = time.Until(s.heap[0].RunAt)
			if wait <= 0 {
				task := heap.Pop(&s.heap).(*Task)
				delete(s.tasks, task.ID)
				s.mu.Unlock()

				select {
				case s.due <- task:
				case <-s.stopCh:
					return
				}
				continue
			}
		}
		s.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-s.wakeup:
			timer.Stop()
		case <-s.stopCh:
			timer.Stop()
			return
		}
	}
}

func (s *Scheduler) worker() {
	defer s.wg.Done()

	for {
		select {
		case task := <-s.due:
			task.Run()
		case <-s.stopCh:
			return
		}
	}
}

// Stats describes the scheduler
type Stats struct {
	ScheduledTasks int
	Workers        int
}

// Stats returns the number of pending tasks and workers
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		ScheduledTasks: len(s.tasks),
		Workers:        s.workers,
	}
}
