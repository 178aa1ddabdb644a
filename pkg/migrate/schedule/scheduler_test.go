package schedule

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/baderkha/events-migrator/pkg/migrate"
	. "github.com/onsi/gomega"
	"github.com/rs/zerolog"
)

type countingRunner struct {
	calls    int32
	finished int32
	hold     time.Duration
}

func (c *countingRunner) RunCycle(ctx context.Context, trigger migrate.Trigger) (migrate.Result, error) {
	atomic.AddInt32(&c.calls, 1)
	time.Sleep(c.hold)
	atomic.AddInt32(&c.finished, 1)
	return migrate.Result{Run: migrate.Run{Trigger: trigger}}, nil
}

func TestRunFiresImmediately(t *testing.T) {
	g := NewWithT(t)
	r := &countingRunner{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = New(r, time.Hour, zerolog.Nop()).Run(ctx) }()
	g.Eventually(func() int32 { return atomic.LoadInt32(&r.calls) }, time.Second).Should(Equal(int32(1)))
	g.Consistently(func() int32 { return atomic.LoadInt32(&r.calls) }, 100*time.Millisecond).Should(Equal(int32(1)))
}

func TestRunFiresEveryPeriodAndStops(t *testing.T) {
	g := NewWithT(t)
	r := &countingRunner{}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- New(r, 10*time.Millisecond, zerolog.Nop()).Run(ctx) }()
	g.Eventually(func() int32 { return atomic.LoadInt32(&r.calls) }, time.Second).Should(BeNumerically(">=", 4))

	cancel()
	g.Eventually(done, time.Second).Should(Receive(BeNil()))
	stopped := atomic.LoadInt32(&r.calls)
	g.Consistently(func() int32 { return atomic.LoadInt32(&r.calls) }, 50*time.Millisecond).Should(Equal(stopped))
}

func TestSlowCycleDoesNotDelayTicks(t *testing.T) {
	g := NewWithT(t)
	r := &countingRunner{hold: 200 * time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- New(r, 10*time.Millisecond, zerolog.Nop()).Run(ctx) }()
	g.Eventually(func() int32 { return atomic.LoadInt32(&r.calls) }, 150*time.Millisecond).Should(BeNumerically(">=", 3))

	cancel()
	g.Eventually(done, 2*time.Second).Should(Receive(BeNil()))
	// shutdown waits for cycles in flight
	g.Expect(atomic.LoadInt32(&r.finished)).To(Equal(atomic.LoadInt32(&r.calls)))
}

func TestRunRejectsZeroPeriod(t *testing.T) {
	g := NewWithT(t)
	g.Expect(New(&countingRunner{}, 0, zerolog.Nop()).Run(context.Background())).ToNot(Succeed())
}
