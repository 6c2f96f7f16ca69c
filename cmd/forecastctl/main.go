package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"retail-forecast-api/pkg/client"
	"retail-forecast-api/pkg/models"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

type globalOptions struct {
	baseURL string
	timeout time.Duration
}

func main() {
	_ = godotenv.Load()
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:          "forecastctl",
		Short:        "Command line client for the retail demand forecasting API",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.baseURL, "base-url", envOr("API_BASE_URL", "http://localhost:8080"), "API base URL")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", envSeconds("API_TIMEOUT", 10*time.Second), "request timeout")

	for _, op := range []client.Operation{client.OpRoot, client.OpHealth, client.OpSummary} {
		cmd.AddCommand(newFetchCommand(opts, op))
	}
	cmd.AddCommand(newSampleCommand(opts), newPredictCommand(opts), newEvaluateCommand(opts))
	return cmd
}

func newFetchCommand(opts *globalOptions, op client.Operation) *cobra.Command {
	return &cobra.Command{
		Use:   op.String(),
		Short: fmt.Sprintf("Call the %s endpoint", op),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := newClient(opts).Fetch(cmd.Context(), op, client.SampleParams{})
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
}

func newSampleCommand(opts *globalOptions) *cobra.Command {
	var params client.SampleParams
	cmd := &cobra.Command{
		Use:   client.OpSample.String(),
		Short: "Fetch rows of the reference dataset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := newClient(opts).Fetch(cmd.Context(), client.OpSample, params)
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
	cmd.Flags().IntVar(&params.Limit, "limit", 100, "number of most recent rows")
	cmd.Flags().StringVar(&params.StartDate, "start-date", "", "inclusive start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&params.EndDate, "end-date", "", "inclusive end date (YYYY-MM-DD)")
	return cmd
}

type predictFlags struct {
	limit       int
	startDate   string
	endDate     string
	recordsFile string
}

func (f *predictFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.limit, "limit", 200, "number of most recent rows to score")
	cmd.Flags().StringVar(&f.startDate, "start-date", "", "inclusive start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.endDate, "end-date", "", "inclusive end date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.recordsFile, "records", "", "JSON file with an array of feature records")
}

func (f *predictFlags) request(cmd *cobra.Command) (*models.PredictionRequest, error) {
	req := &models.PredictionRequest{}
	if cmd.Flags().Changed("limit") {
		req.Limit = &f.limit
	}
	if f.startDate != "" {
		req.StartDate = &f.startDate
	}
	if f.endDate != "" {
		req.EndDate = &f.endDate
	}
	if f.recordsFile != "" {
		records, err := readRecords(f.recordsFile)
		if err != nil {
			return nil, err
		}
		req.Records = records
	}
	return req, nil
}

func newPredictCommand(opts *globalOptions) *cobra.Command {
	var (
		flags predictFlags
		merge bool
	)
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Score rows of the reference dataset or records from a JSON file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := flags.request(cmd)
			if err != nil {
				return err
			}
			res, err := newClient(opts).Predict(cmd.Context(), req)
			if err != nil {
				return err
			}
			if merge && req.Records != nil {
				return printJSON(cmd, client.MergePredictions(req.Records, res.Predictions))
			}
			return printJSON(cmd, res)
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&merge, "merge", false, "print records with a prediction column instead of the raw response")
	return cmd
}

func newEvaluateCommand(opts *globalOptions) *cobra.Command {
	var flags predictFlags
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Compare predictions with recorded units_sold",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := flags.request(cmd)
			if err != nil {
				return err
			}
			res, err := newClient(opts).Evaluate(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
	flags.register(cmd)
	return cmd
}

func newClient(opts *globalOptions) *client.Client {
	return client.New(opts.baseURL, opts.timeout)
}

func readRecords(path string) ([]models.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var records []models.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if records == nil {
		records = []models.Record{}
	}
	return records, nil
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// envSeconds reads a float number of seconds, as the dashboard does.
func envSeconds(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return def
	}
	return time.Duration(f * float64(time.Second))
}
