package cmd

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/metrink/metrink-go/internal/errors"
	"github.com/metrink/metrink-go/internal/forecast"
)

func forecastCommand() *cobra.Command {
	var (
		period  int
		horizon int
		file    string
	)
	cmd := &cobra.Command{
		Use:   "forecast",
		Short: "Forecast a series of whitespace-separated values",
		Long: "Reads values from --file (or stdin when omitted or \"-\"), fits a triple\n" +
			"exponential smoothing model and prints the predictions as JSON.\n" +
			"A zero --period is detected from the series.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			in := cmd.InOrStdin()
			if file != "" && file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return errors.New(err).
						Component("cmd").
						Category(errors.CategoryConfiguration).
						Context("file", file).
						Build()
				}
				defer f.Close()
				in = f
			}

			series, err := readSeries(in)
			if err != nil {
				return err
			}
			p, err := forecast.Project(series, period, horizon)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(p)
		},
	}
	cmd.Flags().IntVarP(&period, "period", "p", 0, "season length in samples; 0 detects it")
	cmd.Flags().IntVar(&horizon, "horizon", 1, "number of steps to predict")
	cmd.Flags().StringVarP(&file, "file", "f", "", "input file, - for stdin")
	return cmd
}

// readSeries parses whitespace-separated numbers.
func readSeries(r io.Reader) ([]float64, error) {
	scanner := bufio.NewScanner(r)
	scanner.Split(bufio.ScanWords)
	var out []float64
	for scanner.Scan() {
		v, err := strconv.ParseFloat(scanner.Text(), 64)
		if err != nil {
			return nil, errors.New(err).
				Component("cmd").
				Category(errors.CategoryValidation).
				Context("position", len(out)).
				Build()
		}
		out = append(out, v)
	}
	return out, scanner.Err()
}
