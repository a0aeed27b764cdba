package cli

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/flight-search/internal/source"
	"github.com/Adithya-Monish-Kumar-K/flight-search/pkg/kafka"
	"github.com/spf13/cobra"
)

func newPublishCommand(g *globalFlags) *cobra.Command {
	var (
		topic   string
		deletes []int64
	)
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish record events to Kafka",
		Long: `Publish an upsert event for every record in the configured source, or
delete events for the ids given with --delete. A running "ingest" applies them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := g.cfg
			if topic == "" {
				topic = cfg.Kafka.Topics.RecordEvents
			}
			ctx := cmd.Context()

			var events []kafka.RecordEvent
			if len(deletes) > 0 {
				for _, id := range deletes {
					events = append(events, kafka.RecordEvent{Action: kafka.ActionDelete, ID: id})
				}
			} else {
				s, err := schemaFromConfig(cfg)
				if err != nil {
					return err
				}
				src, closeSrc, err := source.New(ctx, cfg, s)
				if err != nil {
					return err
				}
				records, err := loadWithRetry(ctx, src)
				closeSrc()
				if err != nil {
					return err
				}
				for _, r := range records {
					events = append(events, kafka.RecordEvent{Action: kafka.ActionUpsert, ID: r.ID, Fields: r.Fields})
				}
			}

			producer := kafka.NewProducer(cfg.Kafka, topic)
			defer producer.Close()
			if err := producer.Publish(ctx, events...); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "published %d event(s) to %s\n", len(events), topic)
			return nil
		},
	}
	cmd.Flags().StringVarP(&topic, "topic", "t", "", "Kafka topic (default kafka.topics.recordEvents)")
	cmd.Flags().Int64SliceVar(&deletes, "delete", nil, "publish delete events for these ids instead")
	return cmd
}
