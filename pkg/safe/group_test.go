// pkg/safe/group_test.go
package safe

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/YaganovValera/ibkr-collector/pkg/logger"
)

func TestGroup_AllSucceed(t *testing.T) {
	g := New(context.Background(), logger.NewNop())
	done := make(chan struct{}, 3)
	for i := 0; i < 3; i++ {
		g.Go("worker", func(context.Context) error {
			done <- struct{}{}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("Wait = %v", err)
	}
	if len(done) != 3 {
		t.Errorf("ran %d goroutines, want 3", len(done))
	}
	if g.Context().Err() != nil {
		t.Error("context cancelled without failure")
	}
}

func TestGroup_ErrorCancelsOthers(t *testing.T) {
	g := New(context.Background(), logger.NewNop())
	boom := errors.New("boom")

	g.Go("blocker", func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	})
	g.Go("failer", func(context.Context) error { return boom })

	err := g.Wait()
	if !errors.Is(err, boom) {
		t.Fatalf("Wait = %v, want boom", err)
	}
	if !strings.HasPrefix(err.Error(), "failer:") {
		t.Errorf("err = %q, want name prefix", err)
	}
}

func TestGroup_PanicRecovered(t *testing.T) {
	g := New(context.Background(), logger.NewNop())
	g.Go("panicker", func(context.Context) error { panic("oops") })

	select {
	case <-g.Context().Done():
	case <-time.After(time.Second):
		t.Fatal("panic did not cancel the group")
	}
	if err := g.Wait(); err == nil || !strings.Contains(err.Error(), "oops") {
		t.Errorf("Wait = %v", err)
	}
}

func TestGroup_CancelStopsWorkers(t *testing.T) {
	g := New(context.Background(), logger.NewNop())
	g.Go("blocker", func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	})
	g.Cancel()
	if err := g.Wait(); err != nil {
		t.Errorf("Wait = %v", err)
	}
	if g.Err() != nil {
		t.Errorf("Err = %v", g.Err())
	}
}
