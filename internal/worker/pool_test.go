package worker

import (
	"context"
	"errors"
	"sort"
	"sync/atomic"
	"testing"
	"time"
)

// evenEvaluator keeps even indices and fails chunks containing a marker.
type evenEvaluator struct {
	delay     time.Duration
	failOn    int
	callCount atomic.Int32
}

func (e *evenEvaluator) Evaluate(ctx context.Context, candidates []int) ([]int, error) {
	e.callCount.Add(1)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(e.delay):
	}

	var out []int
	for _, c := range candidates {
		if e.failOn > 0 && c == e.failOn {
			return nil, errors.New("simulated failure")
		}
		if c%2 == 0 {
			out = append(out, c)
		}
	}
	return out, nil
}

func seq(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func TestSplit(t *testing.T) {
	tasks := Split(seq(10), 3)
	if len(tasks) != 3 {
		t.Fatalf("Expected 3 chunks, got %d", len(tasks))
	}

	var joined []int
	for i, task := range tasks {
		if task.Chunk != i {
			t.Errorf("Expected chunk %d, got %d", i, task.Chunk)
		}
		joined = append(joined, task.Candidates...)
	}
	if len(joined) != 10 {
		t.Fatalf("Expected 10 candidates across chunks, got %d", len(joined))
	}
	for i, c := range joined {
		if c != i {
			t.Errorf("Chunks reordered candidates: position %d holds %d", i, c)
		}
	}

	if got := Split(seq(2), 8); len(got) != 2 {
		t.Errorf("Expected chunk count capped at candidate count, got %d", len(got))
	}
	if got := Split(nil, 4); got != nil {
		t.Errorf("Expected nil for no candidates, got %v", got)
	}
}

func TestPool_BasicExecution(t *testing.T) {
	eval := &evenEvaluator{delay: 5 * time.Millisecond}
	pool := New(Config{Workers: 2, Evaluator: eval})

	tasks := Split(seq(12), 3)
	results := pool.Run(context.Background(), tasks)

	if len(results) != len(tasks) {
		t.Fatalf("Expected %d results, got %d", len(tasks), len(results))
	}

	var matches []int
	for _, r := range results {
		if r.Err != nil {
			t.Errorf("Unexpected error for chunk %d: %v", r.Task.Chunk, r.Err)
		}
		matches = append(matches, r.Matches...)
	}
	sort.Ints(matches)

	want := []int{0, 2, 4, 6, 8, 10}
	if len(matches) != len(want) {
		t.Fatalf("Expected %v, got %v", want, matches)
	}
	for i := range want {
		if matches[i] != want[i] {
			t.Errorf("Expected %v, got %v", want, matches)
			break
		}
	}

	if eval.callCount.Load() != int32(len(tasks)) {
		t.Errorf("Expected %d evaluator calls, got %d", len(tasks), eval.callCount.Load())
	}
}

func TestPool_Parallelism(t *testing.T) {
	eval := &evenEvaluator{delay: 50 * time.Millisecond}
	pool := New(Config{Workers: 4, Evaluator: eval})

	tasks := Split(seq(8), 8)

	start := time.Now()
	results := pool.Run(context.Background(), tasks)
	elapsed := time.Since(start)

	// 8 chunks at 50ms with 4 workers is two rounds.
	if elapsed > 300*time.Millisecond {
		t.Errorf("Expected parallel execution in ~100ms, took %v", elapsed)
	}
	if len(results) != len(tasks) {
		t.Errorf("Expected %d results, got %d", len(tasks), len(results))
	}
}

func TestPool_ErrorHandling(t *testing.T) {
	eval := &evenEvaluator{failOn: 5}
	pool := New(Config{Workers: 2, Evaluator: eval})

	tasks := Split(seq(9), 3) // chunk 1 holds 3,4,5
	results := pool.Run(context.Background(), tasks)

	if len(results) != len(tasks) {
		t.Fatalf("Expected %d results, got %d", len(tasks), len(results))
	}

	var failCount int
	for _, r := range results {
		if r.Err != nil {
			failCount++
			if r.Task.Chunk != 1 {
				t.Errorf("Unexpected failure for chunk %d", r.Task.Chunk)
			}
		}
	}
	if failCount != 1 {
		t.Errorf("Expected 1 failure, got %d", failCount)
	}
}

func TestPool_Cancellation(t *testing.T) {
	eval := &evenEvaluator{delay: 100 * time.Millisecond}
	pool := New(Config{Workers: 2, Evaluator: eval})

	tasks := Split(seq(10), 10)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	results := pool.Run(ctx, tasks)
	elapsed := time.Since(start)

	if elapsed > 300*time.Millisecond {
		t.Errorf("Expected early cancellation, took %v", elapsed)
	}
	if len(results) != len(tasks) {
		t.Errorf("Expected a result per task, got %d", len(results))
	}

	var cancelled int
	for _, r := range results {
		if errors.Is(r.Err, context.Canceled) {
			cancelled++
		}
	}
	if cancelled == 0 {
		t.Error("Expected cancelled results")
	}
}

func TestPool_ProgressCallback(t *testing.T) {
	eval := &evenEvaluator{}

	var progressCalls atomic.Int32
	var lastCompleted, lastTotal int

	pool := New(Config{
		Workers:   2,
		Evaluator: eval,
		OnProgress: func(completed, total, failed int) {
			progressCalls.Add(1)
			lastCompleted = completed
			lastTotal = total
		},
	})

	tasks := Split(seq(6), 3)
	pool.Run(context.Background(), tasks)

	if progressCalls.Load() != int32(len(tasks)) {
		t.Errorf("Expected %d progress callbacks, got %d", len(tasks), progressCalls.Load())
	}
	if lastCompleted != len(tasks) {
		t.Errorf("Expected lastCompleted=%d, got %d", len(tasks), lastCompleted)
	}
	if lastTotal != len(tasks) {
		t.Errorf("Expected lastTotal=%d, got %d", len(tasks), lastTotal)
	}
}

func TestPool_EmptyTasks(t *testing.T) {
	eval := &evenEvaluator{}
	pool := New(Config{Workers: 2, Evaluator: eval})

	if results := pool.Run(context.Background(), nil); len(results) != 0 {
		t.Errorf("Expected 0 results for empty tasks, got %d", len(results))
	}
	if eval.callCount.Load() != 0 {
		t.Errorf("Expected 0 evaluator calls, got %d", eval.callCount.Load())
	}
}

func TestEvaluatorFunc(t *testing.T) {
	pool := New(Config{Evaluator: EvaluatorFunc(func(_ context.Context, c []int) ([]int, error) {
		return c[:1], nil
	})})

	if pool.Workers() != 1 {
		t.Errorf("Expected default of 1 worker, got %d", pool.Workers())
	}

	results := pool.Run(context.Background(), Split(seq(4), 1))
	if len(results) != 1 || len(results[0].Matches) != 1 || results[0].Matches[0] != 0 {
		t.Errorf("Unexpected results: %+v", results)
	}
}
