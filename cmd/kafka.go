package cmd

import (
	"encoding/json"
	"io"
	"log"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/ecodata/edk/kafka"
)

// KafkaMain is wrapped by NewKafkaCommand and only exported for testing
// purposes.
var KafkaMain *kafka.Source

// NewKafkaCommand returns a new cobra command wrapping KafkaMain. It drains
// occurrence records from Kafka and prints them as JSON lines, which is
// mostly useful for checking what a topic holds before wiring it into a
// pipeline.
func NewKafkaCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	KafkaMain = kafka.NewSource()
	kafkaCommand := &cobra.Command{
		Use:   "kafka",
		Short: "kafka - consume occurrence records from Kafka",
		Long:  `Consumes JSON occurrence records from Kafka and prints them as JSON lines.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := KafkaMain.Open(); err != nil {
				return err
			}
			signals := make(chan os.Signal, 1)
			signal.Notify(signals, os.Interrupt)
			go func() {
				<-signals
				if err := KafkaMain.Close(); err != nil {
					log.Printf("closing kafka source: %v", err)
				}
			}()
			enc := json.NewEncoder(stdout)
			for {
				rec, err := KafkaMain.Record()
				if err == io.EOF {
					return nil
				}
				if err != nil {
					return err
				}
				if err := enc.Encode(rec); err != nil {
					return err
				}
			}
		},
	}
	flags := kafkaCommand.Flags()
	flags.StringSliceVarP(&KafkaMain.Hosts, "hosts", "k", KafkaMain.Hosts, "Kafka cluster.")
	flags.StringSliceVarP(&KafkaMain.Topics, "topics", "t", KafkaMain.Topics, "Topics to consume from Kafka.")
	flags.StringVarP(&KafkaMain.Group, "group", "g", KafkaMain.Group, "Group id to use when consuming from Kafka.")
	flags.IntVarP(&KafkaMain.MaxMsgs, "max-msgs", "m", 0, "Stop after this many messages. 0 means run until interrupted.")
	return kafkaCommand
}

func init() {
	subcommandFns["kafka"] = NewKafkaCommand
}
