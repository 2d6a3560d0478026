package retrysched

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vietddude/triage/internal/core/domain"
)

// =============================================================================
// Mock Publisher
// =============================================================================

type mockPublisher struct {
	mu        sync.Mutex
	published []*domain.FailedTask
	delays    []time.Duration
	err       error
}

func (p *mockPublisher) Publish(ctx context.Context, queue string, task *domain.FailedTask, delay time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, task)
	p.delays = append(p.delays, delay)
	return nil
}

func plan() *domain.RetryPlan {
	return &domain.RetryPlan{
		MaxAttempts: 3,
		BaseDelay:   5 * time.Second,
		Multiplier:  2.0,
		MaxDelay:    60 * time.Second,
	}
}

// =============================================================================
// Delay Tests
// =============================================================================

func TestDelay_ExponentialGrowth(t *testing.T) {
	p := plan()

	// Attempt 0: 5*2^0 = 5s
	if d := Delay(p, 0); d != 5*time.Second {
		t.Errorf("expected 5s, got %v", d)
	}

	// Attempt 1: 5*2^1 = 10s
	if d := Delay(p, 1); d != 10*time.Second {
		t.Errorf("expected 10s, got %v", d)
	}

	// Attempt 2: 5*2^2 = 20s
	if d := Delay(p, 2); d != 20*time.Second {
		t.Errorf("expected 20s, got %v", d)
	}

	// Attempt 10: cap at MaxDelay (60s)
	if d := Delay(p, 10); d != 60*time.Second {
		t.Errorf("expected 60s, got %v", d)
	}
}

func TestDelay_MonotoneAndCapped(t *testing.T) {
	p := plan()

	prev := time.Duration(0)
	for attempt := 0; attempt < 20; attempt++ {
		d := Delay(p, attempt)
		if d < prev {
			t.Fatalf("delay decreased at attempt %d: %v < %v", attempt, d, prev)
		}
		if d > p.MaxDelay {
			t.Fatalf("delay %v exceeds cap %v at attempt %d", d, p.MaxDelay, attempt)
		}
		prev = d
	}
}

func TestJitteredDelay_Bounds(t *testing.T) {
	p := plan()
	p.Jitter = true

	for attempt := 0; attempt < 10; attempt++ {
		base := Delay(p, attempt)
		for i := 0; i < 50; i++ {
			d := JitteredDelay(p, attempt)
			if d < base {
				t.Fatalf("jittered delay %v below base %v at attempt %d", d, base, attempt)
			}
			if d > p.MaxDelay {
				t.Fatalf("jittered delay %v exceeds cap %v at attempt %d", d, p.MaxDelay, attempt)
			}
			if d > base+maxJitter {
				t.Fatalf("jitter exceeds bound: %v > %v+%v", d, base, maxJitter)
			}
		}
	}
}

func TestJitteredDelay_DisabledMatchesBase(t *testing.T) {
	p := plan()

	for attempt := 0; attempt < 5; attempt++ {
		if JitteredDelay(p, attempt) != Delay(p, attempt) {
			t.Fatalf("jitter disabled but delays differ at attempt %d", attempt)
		}
	}
}

// =============================================================================
// Schedule Tests
// =============================================================================

func TestSchedule_IncrementsAttemptByOne(t *testing.T) {
	pub := &mockPublisher{}
	s := NewScheduler(pub)

	task := &domain.FailedTask{
		MessageID: "msg-1",
		Queue:     "failed-tasks",
		AgentName: "web-search",
		Attempt:   1,
		Error:     domain.ErrorDetails{Message: "ETIMEDOUT"},
	}

	if err := s.Schedule(context.Background(), task, plan()); err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}

	if len(pub.published) != 1 {
		t.Fatalf("expected 1 publish, got %d", len(pub.published))
	}
	if pub.published[0].Attempt != 2 {
		t.Errorf("expected attempt 2, got %d", pub.published[0].Attempt)
	}
	if task.Attempt != 1 {
		t.Errorf("original task mutated: attempt %d", task.Attempt)
	}
	if pub.published[0].Queue != "failed-tasks" {
		t.Errorf("expected republish to source queue, got %s", pub.published[0].Queue)
	}
	if pub.published[0].Reason == "" {
		t.Error("expected retry-reason annotation")
	}
}

func TestSchedule_PublishFailurePropagates(t *testing.T) {
	pub := &mockPublisher{err: errors.New("queue down")}
	s := NewScheduler(pub)

	task := &domain.FailedTask{MessageID: "msg-1", Queue: "failed-tasks"}
	if err := s.Schedule(context.Background(), task, plan()); err == nil {
		t.Fatal("expected error when publish fails")
	}
}
