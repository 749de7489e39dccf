// Command seed generates, loads, and inspects historical record datasets.
// Used to bootstrap fresh deployments and to build fixtures for load tests.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"

	"github.com/nimbushealth/wardcast/internal/api"
	"github.com/nimbushealth/wardcast/internal/store"
	"github.com/nimbushealth/wardcast/internal/synthetic"
)

var (
	// Global flags
	verbose bool

	// generate flags
	days     int
	seedVal  int64
	startStr string
	outFile  string

	// load flags
	inFile      string
	serverURL   string
	postgresDSN string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "seed",
		Short: "Dataset tooling for the operational stress forecaster",
		Long: `Generates synthetic historical records, loads record files into a running
server or directly into Postgres, and prints dataset statistics.`,
	}

	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Verbose logging")

	rootCmd.AddCommand(generateCmd())
	rootCmd.AddCommand(loadCmd())
	rootCmd.AddCommand(statsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func generateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a synthetic historical dataset",
		Long: `Generates daily records with weekday/weekend skew, a winter peak, and a
realistic overload-day fraction, and writes them as JSON.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Now().AddDate(0, 0, -days)
			if startStr != "" {
				parsed, err := time.Parse("2006-01-02", startStr)
				if err != nil {
					return fmt.Errorf("invalid --start date: %w", err)
				}
				start = parsed
			}
			if seedVal == 0 {
				seedVal = time.Now().UnixNano()
			}

			records := synthetic.NewGenerator(seedVal).Generate(start, days)
			if verbose {
				fmt.Printf("Generated %d records from %s (seed %d)\n",
					len(records), start.Format("2006-01-02"), seedVal)
			}
			return writeRecords(outFile, records)
		},
	}
	cmd.Flags().IntVar(&days, "days", synthetic.DefaultFallbackDays, "Number of days to generate")
	cmd.Flags().Int64Var(&seedVal, "seed", 0, "Random seed (0 = time-derived)")
	cmd.Flags().StringVar(&startStr, "start", "", "First day (YYYY-MM-DD, default: days ago from today)")
	cmd.Flags().StringVarP(&outFile, "out", "o", "records.json", "Output file (- for stdout)")
	return cmd
}

func loadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Load a record file into a server or Postgres",
		Long: `Reads a JSON record file and uploads it through a running server's upload
endpoint, or writes it directly to Postgres with --postgres.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := readRecords(inFile)
			if err != nil {
				return err
			}

			ctx := context.Background()
			switch {
			case postgresDSN != "":
				st, err := store.NewPostgresStore(ctx, postgresDSN)
				if err != nil {
					return fmt.Errorf("connect postgres: %w", err)
				}
				defer st.Close()
				if err := st.Upsert(ctx, records); err != nil {
					return fmt.Errorf("upsert records: %w", err)
				}
			case serverURL != "":
				resp, err := resty.New().SetTimeout(30 * time.Second).R().
					SetContext(ctx).
					SetHeader("Content-Type", "application/json").
					SetBody(records).
					Post(serverURL + "/v1/data/upload")
				if err != nil {
					return fmt.Errorf("upload: %w", err)
				}
				if resp.IsError() {
					return fmt.Errorf("upload: status %d: %s", resp.StatusCode(), resp.String())
				}
			default:
				return fmt.Errorf("one of --server or --postgres is required")
			}

			fmt.Printf("Loaded %d records\n", len(records))
			return nil
		},
	}
	cmd.Flags().StringVarP(&inFile, "in", "i", "records.json", "Input file")
	cmd.Flags().StringVar(&serverURL, "server", "", "Server base URL (e.g. http://localhost:8080)")
	cmd.Flags().StringVar(&postgresDSN, "postgres", "", "Postgres connection string for direct load")
	return cmd
}

func statsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print summary statistics for a record file",
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := readRecords(inFile)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Println("No records")
				return nil
			}

			var admSum, bedSum, staffSum, overloads int
			for _, r := range records {
				admSum += r.Admissions
				bedSum += r.BedsOccupied
				staffSum += r.StaffOnDuty
				if r.OverloadFlag {
					overloads++
				}
			}
			n := len(records)
			fmt.Printf("Records:        %d (%s to %s)\n", n,
				records[0].Date.Format("2006-01-02"), records[n-1].Date.Format("2006-01-02"))
			fmt.Printf("Avg admissions: %.1f\n", float64(admSum)/float64(n))
			fmt.Printf("Avg beds:       %.1f\n", float64(bedSum)/float64(n))
			fmt.Printf("Avg staff:      %.1f\n", float64(staffSum)/float64(n))
			fmt.Printf("Overload days:  %d (%.1f%%)\n", overloads, float64(overloads)/float64(n)*100)
			return nil
		},
	}
	cmd.Flags().StringVarP(&inFile, "in", "i", "records.json", "Input file")
	return cmd
}

func writeRecords(path string, records []api.HistoricalRecord) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode records: %w", err)
	}
	if path == "-" {
		_, err = os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func readRecords(path string) ([]api.HistoricalRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var records []api.HistoricalRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return records, nil
}
