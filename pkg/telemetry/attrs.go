// pkg/telemetry/attrs.go
package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Ключи атрибутов span'ов и ресурса для сессии со шлюзом IB.
const (
	GatewayAddrKey   = attribute.Key("ib.gateway.addr")
	ClientIDKey      = attribute.Key("ib.client_id")
	ServerVersionKey = attribute.Key("ib.server_version")
	RequestIDKey     = attribute.Key("ib.request_id")
	OrderIDKey       = attribute.Key("ib.order_id")
	SymbolKey        = attribute.Key("ib.symbol")
	AccountKey       = attribute.Key("ib.account")
	BarSourceKey     = attribute.Key("ib.bars.what_to_show")
)

// SessionAttrs описывает сессию: адрес шлюза, client id и
// согласованную версию протокола. Версия 0 (ещё не согласована) опускается.
func SessionAttrs(addr string, clientID, serverVersion int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		GatewayAddrKey.String(addr),
		ClientIDKey.Int(clientID),
	}
	if serverVersion > 0 {
		attrs = append(attrs, ServerVersionKey.Int(serverVersion))
	}
	return attrs
}

// SpanAttrs склеивает атрибуты сессии и запроса в новый срез,
// не трогая массив session.
func SpanAttrs(session []attribute.KeyValue, extra ...attribute.KeyValue) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(session)+len(extra))
	out = append(out, session...)
	return append(out, extra...)
}
