package commands

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"emergency-dispatch-service/internal/events"
)

var (
	watchBrokers []string
	watchTopic   string
	watchSince   time.Duration
	watchGroup   string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print transcript updates from Kafka",
	Long: `Follow the transcript topic and print every caller and dispatcher
line, e.g. to monitor calls handled by another instance.

Brokers and topic default to KAFKA_BROKERS and KAFKA_TOPIC.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		brokers := watchBrokers
		if len(brokers) == 0 {
			brokers = cfg.Kafka.Brokers
		}
		topic := watchTopic
		if topic == "" {
			topic = cfg.Kafka.Topic
		}

		c, err := events.NewConsumer(events.ConsumerConfig{
			Brokers: brokers,
			Topic:   topic,
			Since:   watchSince,
			GroupID: watchGroup,
		})
		if err != nil {
			return err
		}
		defer c.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return c.Run(ctx, printSink(cmd.OutOrStdout()))
	},
}

func init() {
	watchCmd.Flags().StringSliceVar(&watchBrokers, "brokers", nil, "Kafka brokers")
	watchCmd.Flags().StringVar(&watchTopic, "topic", "", "transcript topic")
	watchCmd.Flags().DurationVar(&watchSince, "since", time.Hour, "replay updates newer than this")
	watchCmd.Flags().StringVar(&watchGroup, "group", "", "consumer group id")
}
