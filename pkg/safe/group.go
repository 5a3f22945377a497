// pkg/safe/group.go
//
// Пакет safe — группа goroutine с перехватом паник.
package safe

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"go.uber.org/zap"

	"github.com/YaganovValera/ibkr-collector/pkg/logger"
)

// Group — аналог errgroup.Group с защитой от panic.
// Ошибка или паника любой goroutine отменяет контекст группы.
type Group struct {
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	log    *logger.Logger

	mu  sync.Mutex
	err error
}

// New создаёт группу с производным контекстом.
func New(ctx context.Context, log *logger.Logger) *Group {
	ctx, cancel := context.WithCancel(ctx)
	return &Group{
		ctx:    ctx,
		cancel: cancel,
		log:    log.Named("safe"),
	}
}

// Go запускает защищённую goroutine. name попадает в логи.
func (g *Group) Go(name string, fn func(ctx context.Context) error) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer g.recoverPanic(name)
		if err := fn(g.ctx); err != nil {
			g.fail(name, err)
		}
	}()
}

// Wait блокирует до завершения всех goroutine и возвращает первую ошибку.
func (g *Group) Wait() error {
	g.wg.Wait()
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.err
}

// Context возвращает контекст группы.
func (g *Group) Context() context.Context { return g.ctx }

// Cancel отменяет контекст группы.
func (g *Group) Cancel() { g.cancel() }

// Err — первая ошибка, если она уже есть.
func (g *Group) Err() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.err
}

func (g *Group) fail(name string, err error) {
	g.mu.Lock()
	if g.err == nil {
		g.err = fmt.Errorf("%s: %w", name, err)
	}
	g.mu.Unlock()
	if g.ctx.Err() == nil {
		g.log.Error("goroutine error", zap.String("name", name), zap.Error(err))
	}
	g.cancel()
}

func (g *Group) recoverPanic(name string) {
	if r := recover(); r != nil {
		g.log.Error("panic recovered",
			zap.String("name", name),
			zap.Any("panic", r),
			zap.ByteString("stack", debug.Stack()),
		)
		g.fail(name, fmt.Errorf("panic: %v", r))
	}
}
