package results

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
)

// csvHeader fixes the column order. Downstream analysis scripts key on
// these names, so the order is part of the output contract.
var csvHeader = []string{
	"operation",
	"backend",
	"threads",
	"affinity",
	"scale",
	"sequence_count",
	"total_bases",
	"requested_samples",
	"valid_samples",
	"median",
	"mean",
	"std_dev",
	"ci_low",
	"ci_high",
	"q1",
	"q3",
	"speedup_vs_baseline",
	"pruned",
	"failure",
}

// CSVSink appends one row per experiment record to a CSV file, flushing
// after every write so a crash loses at most the in-flight experiment.
type CSVSink struct {
	file   *os.File
	writer *csv.Writer
}

func NewCSVSink(path string) (*CSVSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create CSV output: %w", err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}
	w.Flush()
	return &CSVSink{file: f, writer: w}, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func (c *CSVSink) Write(res *ExperimentResult) error {
	row := []string{
		res.Operation,
		res.Node.Backend.String(),
		strconv.Itoa(res.Node.Threads),
		res.Node.Affinity.String(),
		res.ScaleLabel,
		strconv.Itoa(res.SequenceCount),
		strconv.FormatInt(res.TotalBases, 10),
		strconv.Itoa(res.RequestedSamples),
	}

	if res.Stats != nil {
		s := res.Stats
		row = append(row,
			strconv.Itoa(s.ValidCount),
			formatFloat(s.Median),
			formatFloat(s.Mean),
			formatFloat(s.StdDev),
			formatFloat(s.CILow),
			formatFloat(s.CIHigh),
			formatFloat(s.Q1),
			formatFloat(s.Q3),
		)
	} else {
		row = append(row, "0", "", "", "", "", "", "", "")
	}

	row = append(row,
		formatFloat(res.SpeedupVsBaseline),
		strconv.FormatBool(res.Pruned),
		res.Failure,
	)

	if err := c.writer.Write(row); err != nil {
		return fmt.Errorf("failed to write CSV row: %w", err)
	}
	c.writer.Flush()
	return c.writer.Error()
}

func (c *CSVSink) Close() error {
	c.writer.Flush()
	if err := c.writer.Error(); err != nil {
		c.file.Close()
		return err
	}
	return c.file.Close()
}
