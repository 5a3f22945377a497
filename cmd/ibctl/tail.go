// cmd/ibctl/tail.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/YaganovValera/ibkr-collector/internal/processor"
	"github.com/YaganovValera/ibkr-collector/pkg/kafka"
	"github.com/YaganovValera/ibkr-collector/pkg/logger"
)

// tailRecord — одна строка вывода tail.
type tailRecord struct {
	Topic     string                 `json:"topic"`
	Partition int32                  `json:"partition"`
	Offset    int64                  `json:"offset"`
	Key       string                 `json:"key,omitempty"`
	Envelope  map[string]interface{} `json:"envelope"`
}

// tailHandler декодирует сообщение и пишет его строкой JSON в w.
// Неразборчивые сообщения пропускаются с предупреждением в stderr.
func tailHandler(enc processor.Encoder, w io.Writer) func(msg *kafka.Message) error {
	out := json.NewEncoder(w)
	return func(msg *kafka.Message) error {
		env, err := enc.Decode(msg.Value)
		if err != nil {
			fmt.Fprintf(os.Stderr, "skip %s/%d@%d: %v\n", msg.Topic, msg.Partition, msg.Offset, err)
			return nil
		}
		return out.Encode(tailRecord{
			Topic:     msg.Topic,
			Partition: msg.Partition,
			Offset:    msg.Offset,
			Key:       string(msg.Key),
			Envelope:  env,
		})
	}
}

func tailCmd(gf *globalFlags) *cobra.Command {
	var (
		cfg      kafka.ConsumerConfig
		topics   []string
		encoding string
	)
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Print envelopes published by ib-collector",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			enc, err := processor.NewEncoder(encoding)
			if err != nil {
				return err
			}
			if cfg.GroupID == "" {
				cfg.GroupID = "ibctl-tail-" + uuid.NewString()
			}
			log, err := logger.New(logger.Config{Level: gf.logLevel, DevMode: true})
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx := cmd.Context()
			cons, err := kafka.NewConsumer(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer cons.Close()

			err = cons.Consume(ctx, topics, tailHandler(enc, os.Stdout))
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringSliceVar(&cfg.Brokers, "brokers", []string{"localhost:9092"}, "kafka brokers")
	cmd.Flags().StringVar(&cfg.GroupID, "group", "", "consumer group (default: a fresh ibctl-tail-<uuid>)")
	cmd.Flags().StringVar(&cfg.Version, "kafka-version", "2.8.0", "kafka protocol version")
	cmd.Flags().BoolVar(&cfg.FromOldest, "from-beginning", false, "start from the oldest offset")
	cmd.Flags().StringSliceVar(&topics, "topics", []string{"ib.events", "ib.ticks"}, "topics to read")
	cmd.Flags().StringVar(&encoding, "encoding", "json", "json | protobuf")
	return cmd
}
