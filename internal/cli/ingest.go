package cli

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/flight-search/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/flight-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/flight-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/flight-search/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

func newIngestCommand(g *globalFlags) *cobra.Command {
	var (
		topic    string
		port     int
		maxDirty time.Duration
	)
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Apply record events from Kafka to the index",
		Long: `Consume upsert and delete events for single records from Kafka and apply
them to the index. Every index.commitInterval the index is committed and then
the Kafka offsets of the events it contains. An event that keeps failing stops
the command and is delivered again on the next run. When metrics are
enabled (or --port is given) Prometheus metrics and the /health/live and
/health/ready endpoints are served while the command runs.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := g.cfg
			if topic == "" {
				topic = cfg.Kafka.Topics.RecordEvents
			}
			if port == 0 {
				port = cfg.Metrics.Port
			}
			ctx := cmd.Context()
			logger := slog.Default().With("component", "ingest-command")

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			m := metrics.New(reg)

			a, err := openApp(ctx, cfg, m)
			if err != nil {
				return err
			}
			defer a.Close()

			kafkaConsumer := kafka.NewConsumer(cfg.Kafka, topic, consumer.HandleMessage(a.svc, m))
			defer kafkaConsumer.Close()
			indexConsumer := consumer.New(kafkaConsumer, a.engine, cfg.Index.CommitInterval)

			checker := health.NewChecker()
			checker.Register("index", health.EngineCheck(func() health.IndexStats {
				st := a.engine.Stats()
				return health.IndexStats{
					Documents:  st.Documents,
					Generation: st.Generation,
					Dirty:      st.Dirty,
					Closed:     st.Closed,
				}
			}, maxDirty))
			checker.Register("kafka", health.PingCheck(kafkaConsumer))
			if a.redis != nil {
				checker.Register("redis", health.PingCheck(a.redis))
			}

			if cfg.Metrics.Enabled || cmd.Flags().Changed("port") {
				shutdown := metrics.StartServer(port, reg, map[string]http.Handler{
					"/health/live":  checker.LiveHandler(),
					"/health/ready": checker.ReadyHandler(),
				})
				defer func() {
					sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					if err := shutdown(sctx); err != nil {
						logger.Error("metrics server shutdown failed", "error", err)
					}
				}()
			}

			logger.Info("consuming record events",
				"topic", topic,
				"group", cfg.Kafka.ConsumerGroup,
				"metrics_port", port,
			)
			if err := indexConsumer.Run(ctx); err != nil {
				logger.Error("ingest stopped", "error", err)
				return err
			}
			logger.Info("ingest stopped")
			return nil
		},
	}
	cmd.Flags().StringVarP(&topic, "topic", "t", "", "Kafka topic (default kafka.topics.recordEvents)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "metrics and health port (default metrics.port)")
	cmd.Flags().DurationVar(&maxDirty, "max-dirty", time.Minute, "report degraded when changes stay uncommitted this long")
	return cmd
}
