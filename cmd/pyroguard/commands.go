package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/couchcryptid/pyroguard-risk-service/internal/dashboard"
	"github.com/couchcryptid/pyroguard-risk-service/internal/domain"
	"github.com/couchcryptid/pyroguard-risk-service/internal/store"
	"github.com/spf13/cobra"
)

func (a *app) service() *dashboard.Service {
	return dashboard.NewService(a.readings, a.overrides, a.geocoder, a.model.Thresholds, a.logger)
}

// scoreCmd parses device lines without persisting them.
func scoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "score [line...]",
		Short: "Parse and score telemetry lines (reads stdin when no lines are given)",
		Example: `  pyroguard score "T:38.5 H:12 W:7 SM:3 DRY:0.8"
  cat capture.log | pyroguard score`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			text := strings.Join(args, "\n")
			if len(args) == 0 {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				text = string(data)
			}
			readings, err := a.service().ParseTelemetry(cmd.Context(), text)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), readings)
		},
	}
}

// importCmd merges an external reading table into the persisted one.
func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <table.csv>",
		Short: "Rescore a reading table and merge it into the persisted table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open %s: %w", args[0], err)
			}
			defer f.Close()

			incoming, err := store.DecodeReadings(bufio.NewReader(f), a.logger)
			if err != nil {
				return err
			}
			rows, err := a.readings.Append(cmd.Context(), a.model.Rescore(incoming))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d readings into %s (%d rows)\n",
				len(incoming), a.readings.Path(), rows)
			return nil
		},
	}
}

func summaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Print the dashboard summary of the persisted table",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			summary, err := a.service().Summary(cmd.Context(), domain.DefaultWeights())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), summary)
		},
	}
}

// overrideCmd manages operator position overrides.
func overrideCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "override",
		Short: "Manage sensor position overrides",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set <sensor_id> <lat> <lon>",
		Short: "Pin a sensor to a position",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			lat, lon := store.ParseOverrideInput(args[1], args[2])
			if err := a.overrides.Set(cmd.Context(), args[0], lat, lon); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "override saved for %s\n", strings.TrimSpace(args[0]))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List overrides",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			overrides, err := a.overrides.Load(cmd.Context())
			if err != nil {
				return err
			}
			ids := make([]string, 0, len(overrides))
			for id := range overrides {
				ids = append(ids, id)
			}
			sort.Strings(ids)

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%-20s %12s %12s\n", "SENSOR", "LAT", "LON")
			for _, id := range ids {
				fmt.Fprintf(w, "%-20s %12.6f %12.6f\n", id, overrides[id].Lat, overrides[id].Lon)
			}
			return nil
		},
	})
	return cmd
}

func etaCmd() *cobra.Command {
	route := domain.DefaultRoute()
	cmd := &cobra.Command{
		Use:   "eta",
		Short: "Estimate emergency response time with and without signal priority",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := route.Validate(); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), domain.EstimateETA(route))
		},
	}
	cmd.Flags().Float64Var(&route.DistanceKM, "distance", route.DistanceKM, "distance to the incident in km [1,25]")
	cmd.Flags().IntVar(&route.Traffic, "traffic", route.Traffic, "traffic level [1,10]")
	cmd.Flags().IntVar(&route.Intersections, "intersections", route.Intersections, "signalized intersections [2,30]")
	return cmd
}

func hotspotsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hotspots [firms.csv]",
		Short: "Parse a FIRMS hotspot export, or print the simulated set",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				a, err := loadApp()
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), a.service().SimulatedHotspots())
			}

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open %s: %w", args[0], err)
			}
			defer f.Close()

			hotspots, skipped, err := domain.ParseHotspots(f)
			if err != nil {
				return err
			}
			if skipped > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "skipped %d rows without valid coordinates\n", skipped)
			}
			return printJSON(cmd.OutOrStdout(), hotspots)
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
