// internal/processor/interface.go
package processor

import (
	"context"

	"github.com/YaganovValera/ibkr-collector/pkg/ibapi/message"
)

// Processor определяет контракт на обработку одного события шлюза.
type Processor interface {
	// Process кодирует событие и публикует результат в Kafka.
	Process(ctx context.Context, ev message.Event) error
}
