// Copyright 2026 The scanexec Authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command scanexecd is a small demo binary wiring
// table.MemCursorFactory, scanconfig, and scanengine together, the way
// arcentrix-arcentra/cmd/cli wires its own engine with cobra.
package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vectorframe/scanexec/rowid"
	"github.com/vectorframe/scanexec/scanconfig"
	"github.com/vectorframe/scanexec/scanengine"
	"github.com/vectorframe/scanexec/table"
	"github.com/vectorframe/scanexec/telemetry"
)

var (
	configFile string
	rowLimit   int64
	threshold  int64
)

var rootCmd = &cobra.Command{
	Use:   "scanexecd",
	Short: "scanexecd demonstrates the asynchronous page-frame scan pipeline",
	Long:  "scanexecd demonstrates the asynchronous page-frame scan pipeline",
	Run: func(cmd *cobra.Command, args []string) {
		if err := cmd.Help(); err != nil {
			return
		}
	},
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "run a demo scan over an in-memory table",
	RunE:  runScan,
}

func init() {
	scanCmd.Flags().StringVar(&configFile, "conf", "", "scanconfig file path (toml/yaml/json); defaults are used if empty")
	scanCmd.Flags().Int64Var(&rowLimit, "limit", 0, "row limit for the scan; 0 means unlimited")
	scanCmd.Flags().Int64Var(&threshold, "threshold", 0, "emit rows whose value column exceeds this threshold")
	rootCmd.AddCommand(scanCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		panic(err)
	}
}

func runScan(cmd *cobra.Command, args []string) error {
	log, err := telemetry.New()
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}

	opts := scanconfig.Defaults()
	if configFile != "" {
		store, err := scanconfig.Load(configFile, log)
		if err != nil {
			return err
		}
		opts = store.Get()
	}

	engine, err := scanengine.New(opts, log)
	if err != nil {
		return fmt.Errorf("scanengine: %w", err)
	}
	engine.Start()
	defer engine.Stop()

	factory := demoFactory()
	reducer := thresholdReducer{}

	cur, err := engine.Scan(factory, reducer, threshold, rowLimit)
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	defer cur.Close()

	count := 0
	for cur.HasNext() {
		rec := cur.Record()
		id := rowid.Pack(rec.Frame.PartitionLo, rec.RowIndex)
		fmt.Printf("partition=%d row=%d id=%d\n", rec.Frame.PartitionLo, rec.RowIndex, id)
		count++
	}
	fmt.Printf("emitted %d rows\n", count)
	return nil
}

// demoFactory builds a small in-memory table with one "value" column
// across a handful of partitions, paginated into 64-row frames.
func demoFactory() *table.MemCursorFactory {
	f := table.NewMemCursorFactory([]string{"value"}, 64)
	for p := 0; p < 4; p++ {
		values := make([]int64, 256)
		for i := range values {
			values[i] = int64(p*1000 + i)
		}
		f.AddPartition([][]int64{values})
	}
	return f
}

// thresholdReducer appends every row whose "value" column exceeds atom
// (an int64 threshold) to the reduce task's surviving row list.
type thresholdReducer struct{}

func (thresholdReducer) Reduce(rec *table.Record, atom any, sink table.RowSink) error {
	threshold, _ := atom.(int64)
	addr := rec.Frame.ColumnAddrs[0]
	for row := rec.Frame.RowLo; row < rec.Frame.RowHi; row++ {
		if table.ReadInt64(addr, row) > threshold {
			sink.Append(rowid.Pack(rec.Frame.PartitionLo, row))
		}
	}
	return nil
}
