// internal/processor/dispatcher.go
package processor

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/YaganovValera/ibkr-collector/pkg/ibapi/message"
	"github.com/YaganovValera/ibkr-collector/pkg/logger"
)

var dispatcherTracer = otel.Tracer("collector/processor/dispatcher")

// Dispatcher вычитывает общий канал событий и передаёт их процессору.
// Ошибка одного события не останавливает цикл.
type Dispatcher struct {
	proc Processor
	log  *logger.Logger
}

func NewDispatcher(proc Processor, log *logger.Logger) *Dispatcher {
	return &Dispatcher{proc: proc, log: log.Named("dispatcher")}
}

// Run работает до закрытия in (→ nil) или отмены ctx (→ ctx.Err()).
func (d *Dispatcher) Run(ctx context.Context, in <-chan message.Event) error {
	ctx, span := dispatcherTracer.Start(ctx, "Dispatcher.Run")
	defer span.End()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-in:
			if !ok {
				return nil
			}
			if err := d.proc.Process(ctx, ev); err != nil {
				d.log.WithContext(ctx).Debug("event dropped",
					zap.String("event_type", EventType(ev)),
					zap.Error(err),
				)
			}
		}
	}
}
