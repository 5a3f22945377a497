// internal/processor/envelope.go
package processor

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/YaganovValera/ibkr-collector/pkg/ibapi/message"
)

// Envelope — то, что уходит в Kafka: тип и код события, корреляция и само событие.
type Envelope struct {
	Type       string        `json:"type"`
	Code       int           `json:"code"`
	RequestID  *int64        `json:"request_id,omitempty"`
	Label      string        `json:"label,omitempty"`
	Source     string        `json:"source"`
	ReceivedAt time.Time     `json:"received_at"`
	Payload    message.Event `json:"payload"`
}

// EventType — имя типа события без пакета: "TickPrice", "OrderStatus", ...
func EventType(ev message.Event) string {
	t := reflect.TypeOf(ev)
	if t == nil {
		return "nil"
	}
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// Encoder сериализует конверт в байты сообщения Kafka.
type Encoder interface {
	Encode(env Envelope) ([]byte, error)
	// Decode разбирает сообщение обратно в обобщённый вид (для чтения топиков).
	Decode(b []byte) (map[string]interface{}, error)
	Name() string
}

// NewEncoder возвращает кодировщик по имени: "json" или "protobuf".
func NewEncoder(name string) (Encoder, error) {
	switch strings.ToLower(name) {
	case "", "json":
		return jsonEncoder{}, nil
	case "protobuf", "proto":
		return protoEncoder{}, nil
	}
	return nil, fmt.Errorf("processor: unknown encoding %q", name)
}

type jsonEncoder struct{}

func (jsonEncoder) Name() string { return "json" }

func (jsonEncoder) Encode(env Envelope) ([]byte, error) {
	b, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("processor: json encode %s: %w", env.Type, err)
	}
	return b, nil
}

// protoEncoder кладёт конверт в google.protobuf.Struct.
// Decimal-поля остаются строками, как и в JSON.
type protoEncoder struct{}

func (protoEncoder) Name() string { return "protobuf" }

func (protoEncoder) Encode(env Envelope) ([]byte, error) {
	st, err := toStruct(env)
	if err != nil {
		return nil, fmt.Errorf("processor: proto encode %s: %w", env.Type, err)
	}
	b, err := proto.MarshalOptions{Deterministic: true}.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("processor: proto encode %s: %w", env.Type, err)
	}
	return b, nil
}

func (jsonEncoder) Decode(b []byte) (map[string]interface{}, error) {
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("processor: json decode: %w", err)
	}
	return m, nil
}

func (protoEncoder) Decode(b []byte) (map[string]interface{}, error) {
	var st structpb.Struct
	if err := proto.Unmarshal(b, &st); err != nil {
		return nil, fmt.Errorf("processor: proto decode: %w", err)
	}
	return st.AsMap(), nil
}

func toStruct(env Envelope) (*structpb.Struct, error) {
	raw, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}
