package results

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/shandley/apple-silicon-bio-bench-sub004/internal/logging"
	"github.com/sirupsen/logrus"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
)

// InfluxConfig carries the connection settings for the optional live sink.
type InfluxConfig struct {
	Host   string
	Token  string
	Org    string
	Bucket string
}

// InfluxSink streams experiment records to InfluxDB as they complete, so a
// long sweep can be watched live. The CSV file remains the primary record.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	sweepID  string
}

func NewInfluxSink(cfg InfluxConfig, sweepID string) (*InfluxSink, error) {
	logger := logging.GetLogger()

	client := influxdb2.NewClient(cfg.Host, cfg.Token)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	health, err := client.Health(ctx)
	if err != nil {
		logger.WithField("host", cfg.Host).WithError(err).Error("Failed to connect to InfluxDB")
		return nil, err
	}
	if health.Status != "pass" {
		logger.WithFields(logrus.Fields{
			"host":    cfg.Host,
			"status":  health.Status,
			"message": health.Message,
		}).Error("InfluxDB health check failed")
		return nil, fmt.Errorf("influxdb health check failed: %s", health.Status)
	}

	logger.WithFields(logrus.Fields{
		"host":   cfg.Host,
		"bucket": cfg.Bucket,
		"org":    cfg.Org,
	}).Info("Connected to InfluxDB")

	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		sweepID:  sweepID,
	}, nil
}

func (s *InfluxSink) Write(res *ExperimentResult) error {
	tags := map[string]string{
		"sweep_id":  s.sweepID,
		"operation": res.Operation,
		"backend":   res.Node.Backend.String(),
		"threads":   strconv.Itoa(res.Node.Threads),
		"affinity":  res.Node.Affinity.String(),
		"scale":     res.ScaleLabel,
	}

	fields := map[string]interface{}{
		"sequence_count":      res.SequenceCount,
		"total_bases":         res.TotalBases,
		"requested_samples":   res.RequestedSamples,
		"speedup_vs_baseline": res.SpeedupVsBaseline,
		"pruned":              res.Pruned,
	}
	if res.Stats != nil {
		fields["valid_samples"] = res.Stats.ValidCount
		fields["median"] = res.Stats.Median
		fields["mean"] = res.Stats.Mean
		fields["std_dev"] = res.Stats.StdDev
		fields["ci_low"] = res.Stats.CILow
		fields["ci_high"] = res.Stats.CIHigh
		fields["q1"] = res.Stats.Q1
		fields["q3"] = res.Stats.Q3
	}
	if res.Failure != "" {
		fields["failure"] = res.Failure
	}

	point := influxdb2.NewPoint("experiment", tags, fields, time.Now())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.writeAPI.WritePoint(ctx, point); err != nil {
		return fmt.Errorf("failed to write experiment point: %w", err)
	}
	return nil
}

func (s *InfluxSink) Close() error {
	s.client.Close()
	return nil
}
