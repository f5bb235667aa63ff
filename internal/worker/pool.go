// Package worker provides a parallel evaluation pool for chunks of dataset
// candidates.
package worker

import (
	"context"
	"sync"
	"time"
)

// Evaluator tests one chunk of candidate feature indices and returns the
// indices that pass.
type Evaluator interface {
	Evaluate(ctx context.Context, candidates []int) ([]int, error)
}

// EvaluatorFunc adapts a function to Evaluator.
type EvaluatorFunc func(ctx context.Context, candidates []int) ([]int, error)

// Evaluate calls f.
func (f EvaluatorFunc) Evaluate(ctx context.Context, candidates []int) ([]int, error) {
	return f(ctx, candidates)
}

// Task is one chunk of candidates.
type Task struct {
	Chunk      int
	Candidates []int
}

// Result is the outcome of one Task.
type Result struct {
	Task    Task
	Matches []int
	Err     error
	Elapsed time.Duration
}

// ProgressFunc is called after each task completes.
type ProgressFunc func(completed, total, failed int)

// Config configures the worker pool.
type Config struct {
	Workers    int
	Evaluator  Evaluator
	OnProgress ProgressFunc
}

// Pool runs chunk evaluations in parallel.
type Pool struct {
	workers    int
	evaluator  Evaluator
	onProgress ProgressFunc
}

// New creates a new worker pool.
func New(cfg Config) *Pool {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}

	return &Pool{
		workers:    workers,
		evaluator:  cfg.Evaluator,
		onProgress: cfg.OnProgress,
	}
}

// Workers returns the configured parallelism.
func (p *Pool) Workers() int {
	return p.workers
}

// Split cuts candidates into at most n contiguous chunks of near-equal size.
func Split(candidates []int, n int) []Task {
	if len(candidates) == 0 {
		return nil
	}
	if n <= 0 {
		n = 1
	}
	if n > len(candidates) {
		n = len(candidates)
	}

	size := (len(candidates) + n - 1) / n
	tasks := make([]Task, 0, n)
	for start := 0; start < len(candidates); start += size {
		end := start + size
		if end > len(candidates) {
			end = len(candidates)
		}
		tasks = append(tasks, Task{Chunk: len(tasks), Candidates: candidates[start:end]})
	}
	return tasks
}

// Run executes all tasks and returns their results in completion order.
// It blocks until every task finished or was cancelled.
func (p *Pool) Run(ctx context.Context, tasks []Task) []Result {
	if len(tasks) == 0 {
		return nil
	}

	taskCh := make(chan Task, len(tasks))
	resultCh := make(chan Result, len(tasks))

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.worker(ctx, taskCh, resultCh)
		}()
	}

	// The channel is buffered for every task, so feeding never blocks.
	for _, task := range tasks {
		taskCh <- task
	}
	close(taskCh)

	results := make([]Result, 0, len(tasks))
	done := make(chan struct{})

	go func() {
		var completed, failed int
		for result := range resultCh {
			results = append(results, result)

			completed++
			if result.Err != nil {
				failed++
			}
			if p.onProgress != nil {
				p.onProgress(completed, len(tasks), failed)
			}
		}
		close(done)
	}()

	wg.Wait()
	close(resultCh)
	<-done

	return results
}

func (p *Pool) worker(ctx context.Context, tasks <-chan Task, results chan<- Result) {
	for task := range tasks {
		if err := ctx.Err(); err != nil {
			results <- Result{Task: task, Err: err}
			continue
		}

		start := time.Now()
		matches, err := p.evaluator.Evaluate(ctx, task.Candidates)

		results <- Result{
			Task:    task,
			Matches: matches,
			Err:     err,
			Elapsed: time.Since(start),
		}
	}
}
