package parallel

import (
	"runtime"
	"sync/atomic"
	"testing"
)

func TestPoolWorkers(t *testing.T) {
	tests := []struct {
		workers int
		want    int
	}{
		{4, 4},
		{1, 1},
		{0, runtime.GOMAXPROCS(0)},
		{-3, runtime.GOMAXPROCS(0)},
	}
	for _, tt := range tests {
		p := New(tt.workers)
		if got := p.Workers(); got != tt.want {
			t.Errorf("New(%d).Workers() = %d, want %d", tt.workers, got, tt.want)
		}
		p.Close()
	}
}

func TestPoolRun(t *testing.T) {
	p := New(4)
	defer p.Close()

	var n atomic.Int64
	jobs := make([]func(), 100)
	for i := range jobs {
		jobs[i] = func() { n.Add(int64(i)) }
	}
	p.Run(jobs)
	if got := n.Load(); got != 4950 {
		t.Errorf("sum = %d, want 4950", got)
	}

	p.Run(nil)
}

func TestPoolRunAfterClose(t *testing.T) {
	p := New(2)
	p.Close()
	p.Close()

	ran := 0
	p.Run([]func(){func() { ran++ }, func() { ran++ }})
	if ran != 2 {
		t.Errorf("jobs run after Close = %d, want 2", ran)
	}
}

func TestPoolConcurrentRun(t *testing.T) {
	p := New(3)
	defer p.Close()

	var n atomic.Int64
	done := make(chan struct{})
	for g := 0; g < 4; g++ {
		go func() {
			defer func() { done <- struct{}{} }()
			jobs := make([]func(), 50)
			for i := range jobs {
				jobs[i] = func() { n.Add(1) }
			}
			p.Run(jobs)
		}()
	}
	for g := 0; g < 4; g++ {
		<-done
	}
	if got := n.Load(); got != 200 {
		t.Errorf("jobs run = %d, want 200", got)
	}
}

func BenchmarkPoolRun(b *testing.B) {
	p := New(0)
	defer p.Close()

	jobs := make([]func(), 64)
	var sink atomic.Int64
	for i := range jobs {
		jobs[i] = func() { sink.Add(1) }
	}
	for b.Loop() {
		p.Run(jobs)
	}
}
