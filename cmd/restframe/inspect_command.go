package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"restframe/internal/checkpoint"
	"restframe/internal/config"
	"restframe/internal/history"
	"restframe/internal/losses"
)

func newInspectCommand() *cobra.Command {
	var showAll bool

	cmd := &cobra.Command{
		Use:         "inspect OUTFILE",
		Short:       "Summarize the loss history stored in a checkpoint",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.ExpandPath(args[0])
			if err != nil {
				return fmt.Errorf("resolve checkpoint path: %w", err)
			}
			record, err := checkpoint.Read(path)
			if err != nil {
				return err
			}
			hist := record.Losses
			if hist == nil {
				return fmt.Errorf("checkpoint %s carries no loss history", path)
			}
			if err := hist.Validate(); err != nil {
				return fmt.Errorf("checkpoint %s: %w", path, err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Checkpoint: %s\n", path)
			fmt.Fprintf(out, "Version: %d  Encoders: %d  Epochs done: %d of %d\n\n",
				record.Version, hist.Encoders, hist.Completed(), hist.Epochs)

			headers := []string{"encoder", "phase", "epoch"}
			aligns := []columnAlignment{alignLeft, alignLeft, alignRight}
			for _, name := range losses.TermNames {
				headers = append(headers, name)
				aligns = append(aligns, alignRight)
			}
			headers = append(headers, "total")
			aligns = append(aligns, alignRight)

			fmt.Fprintln(out, renderTable(out, headers, historyRows(hist, showAll), aligns))
			return nil
		},
	}

	cmd.Flags().BoolVar(&showAll, "all", false, "List every completed epoch instead of the latest")
	return cmd
}

func historyRows(hist *history.History, showAll bool) [][]string {
	done := hist.Completed()
	if done == 0 {
		return nil
	}
	first := done - 1
	if showAll {
		first = 0
	}

	var rows [][]string
	for epoch := first; epoch < done; epoch++ {
		for enc := 0; enc < hist.Encoders; enc++ {
			for _, phase := range []int{history.PhaseTrain, history.PhaseValid} {
				rows = append(rows, historyRow(hist, phase, enc, epoch))
			}
		}
	}
	return rows
}

func historyRow(hist *history.History, phase, encoder, epoch int) []string {
	row := []string{
		strconv.Itoa(encoder),
		phaseLabel(phase),
		strconv.Itoa(epoch),
	}
	total := 0.0
	for term := 0; term < losses.NTerms; term++ {
		value := hist.At(phase, encoder, epoch, term)
		total += value
		row = append(row, formatLoss(value))
	}
	return append(row, formatLoss(total))
}

func phaseLabel(phase int) string {
	if phase == history.PhaseValid {
		return "valid"
	}
	return "train"
}

func formatLoss(value float64) string {
	return strconv.FormatFloat(value, 'g', 5, 64)
}
