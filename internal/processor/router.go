// internal/processor/router.go
package processor

import (
	"strconv"
	"sync"

	"github.com/YaganovValera/ibkr-collector/pkg/ibapi/message"
)

// Router выбирает топик и ключ партиционирования для события.
// Котировки идут в ticksTopic, бары в barsTopic (оба с ключом по инструменту),
// всё остальное в eventsTopic.
type Router struct {
	eventsTopic string
	ticksTopic  string
	barsTopic   string

	mu     sync.RWMutex
	labels map[int64]string // request id → метка инструмента
}

func NewRouter(eventsTopic, ticksTopic, barsTopic string) *Router {
	return &Router{
		eventsTopic: eventsTopic,
		ticksTopic:  ticksTopic,
		barsTopic:   barsTopic,
		labels:      make(map[int64]string),
	}
}

// Label связывает request id подписки с меткой (обычно символ инструмента).
func (r *Router) Label(reqID int64, label string) {
	r.mu.Lock()
	r.labels[reqID] = label
	r.mu.Unlock()
}

// Forget убирает метку закрытой подписки.
func (r *Router) Forget(reqID int64) {
	r.mu.Lock()
	delete(r.labels, reqID)
	r.mu.Unlock()
}

// LabelOf возвращает метку request id, если она есть.
func (r *Router) LabelOf(reqID int64) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.labels[reqID]
	return l, ok
}

// Route возвращает топик и ключ. Пустой ключ → партицию выбирает Kafka.
func (r *Router) Route(ev message.Event) (topic, key string) {
	if IsTick(ev) {
		return r.ticksTopic, r.instrumentKey(ev)
	}

	switch e := ev.(type) {
	case message.RealtimeBar:
		return r.barsTopic, r.instrumentKey(ev)

	case message.OrderStatus:
		return r.eventsTopic, orderKey(e.OrderID)
	case message.OpenOrder:
		return r.eventsTopic, orderKey(e.OrderID)
	case message.CompletedOrder:
		return r.eventsTopic, orderKey(e.OrderID)
	case message.ExecutionData:
		return r.eventsTopic, orderKey(e.Execution.OrderID)
	case message.CommissionReport:
		return r.eventsTopic, "exec:" + e.Report.ExecID

	case message.AccountValue:
		return r.eventsTopic, accountKey(e.Account)
	case message.PortfolioValue:
		return r.eventsTopic, accountKey(e.Account)
	case message.AccountSummary:
		return r.eventsTopic, accountKey(e.Account)
	case message.AccountDownloadEnd:
		return r.eventsTopic, accountKey(e.Account)

	case message.ErrorMessage:
		return r.eventsTopic, "error:" + strconv.FormatInt(e.ID, 10)
	}
	return r.eventsTopic, ""
}

// instrumentKey — метка подписки или "req:<id>", если метки нет.
func (r *Router) instrumentKey(ev message.Event) string {
	id, _ := ev.RequestID()
	if l, ok := r.LabelOf(id); ok {
		return l
	}
	return "req:" + strconv.FormatInt(id, 10)
}

// IsTick сообщает, относится ли событие к потоку котировок.
func IsTick(ev message.Event) bool {
	switch ev.(type) {
	case message.TickPrice, message.TickSize, message.TickString, message.TickGeneric,
		message.TickSnapshotEnd, message.MarketDataType:
		return true
	}
	return false
}

func orderKey(id int64) string     { return "order:" + strconv.FormatInt(id, 10) }
func accountKey(acct string) string { return "account:" + acct }
