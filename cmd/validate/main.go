// Command validate checks a reading table (and optionally an override file) for
// integrity: exact header, parseable rows, unique (sensor_id, timestamp) keys, scores in
// range, and labels and scores consistent with the default risk model.
//
// Usage:
//
//	go run ./cmd/validate -table data/mock_sensors.csv -overrides data/overrides.json
package main

import (
	"context"
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/pyroguard-risk-service/internal/domain"
	"github.com/couchcryptid/pyroguard-risk-service/internal/store"
)

// scoreTolerance absorbs float formatting round trips.
const scoreTolerance = 1e-9

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	tablePath := flag.String("table", "data/mock_sensors.csv", "path to the reading table")
	overridesPath := flag.String("overrides", "", "path to the override file (optional)")
	flag.Parse()

	os.Exit(run(*tablePath, *overridesPath))
}

func run(tablePath, overridesPath string) int {
	fmt.Println("=== Reading Table Integrity Validation ===")
	fmt.Println()

	header, rows, err := loadCSV(tablePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load table: %v\n", err)
		return 1
	}

	model := domain.DefaultRiskModel()
	phases := []*phase{
		validateHeader(header),
		validateRows(rows),
		validateKeys(rows),
		validateScores(rows, model),
	}
	if overridesPath != "" {
		phases = append(phases, validateOverrides(overridesPath))
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Rows: %d\n", len(rows))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// ── Data loading ──

// csvRow is a parsed CSV row with field values keyed by header name.
type csvRow struct {
	lineNum int
	fields  map[string]string
}

func loadCSV(path string) ([]string, []csvRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}

	var rows []csvRow
	for line := 2; ; line++ {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("line %d: %w", line, err)
		}
		fields := make(map[string]string, len(header))
		for i, h := range header {
			if i < len(record) {
				fields[h] = strings.TrimSpace(record[i])
			}
		}
		rows = append(rows, csvRow{lineNum: line, fields: fields})
	}
	return header, rows, nil
}

// ── Phases ──

func validateHeader(header []string) *phase {
	p := &phase{name: "Header matches fixed column order"}
	if len(header) != len(store.Columns) {
		p.errorf("got %d columns, want %d", len(header), len(store.Columns))
		return p
	}
	for i, want := range store.Columns {
		if header[i] != want {
			p.errorf("column %d: got %q, want %q", i+1, header[i], want)
		}
	}
	return p
}

var measurementColumns = []string{"temp_c", "humidity_pct", "wind_ms", "smoke_ppm", "fuel_dryness"}

func validateRows(rows []csvRow) *phase {
	p := &phase{name: "Rows parse"}
	for _, row := range rows {
		if row.fields["sensor_id"] == "" {
			p.errorf("line %d: empty sensor_id", row.lineNum)
		}
		if _, err := time.ParseInLocation(domain.TimestampLayout, row.fields["timestamp"], time.Local); err != nil {
			p.errorf("line %d: timestamp %q is not %s", row.lineNum, row.fields["timestamp"], domain.TimestampLayout)
		}
		lat, latOK := parseFloat(row.fields["lat"])
		lon, lonOK := parseFloat(row.fields["lon"])
		if !latOK || !lonOK {
			p.errorf("line %d: missing position", row.lineNum)
		} else if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
			p.errorf("line %d: position (%v,%v) out of range", row.lineNum, lat, lon)
		}
		for _, col := range measurementColumns {
			if v := row.fields[col]; v != "" {
				if _, ok := parseFloat(v); !ok {
					p.errorf("line %d: %s %q is not a number", row.lineNum, col, v)
				}
			}
		}
	}
	return p
}

func validateKeys(rows []csvRow) *phase {
	p := &phase{name: "Keys unique (sensor_id, timestamp)"}
	seen := make(map[string]int, len(rows))
	for _, row := range rows {
		key := row.fields["sensor_id"] + "|" + row.fields["timestamp"]
		if first, dup := seen[key]; dup {
			p.errorf("line %d: duplicate of line %d (%s)", row.lineNum, first, key)
			continue
		}
		seen[key] = row.lineNum
	}
	return p
}

func validateScores(rows []csvRow, model domain.RiskModel) *phase {
	p := &phase{name: "Scores and labels match default model"}
	for _, row := range rows {
		score, ok := parseFloat(row.fields["risk_score"])
		if !ok {
			p.errorf("line %d: risk_score %q is not a number", row.lineNum, row.fields["risk_score"])
			continue
		}
		if score < 0 || score > 1 {
			p.errorf("line %d: risk_score %v outside [0,1]", row.lineNum, score)
		}
		if label := domain.RiskLabel(row.fields["risk_label"]); label != model.Label(score) {
			p.errorf("line %d: label %q, score %v implies %q", row.lineNum, label, score, model.Label(score))
		}

		r := domain.SensorReading{
			TempC:       optional(row.fields["temp_c"]),
			HumidityPct: optional(row.fields["humidity_pct"]),
			WindMS:      optional(row.fields["wind_ms"]),
			SmokePPM:    optional(row.fields["smoke_ppm"]),
			FuelDryness: optional(row.fields["fuel_dryness"]),
		}
		if want := model.Score(r); math.Abs(want-score) > scoreTolerance {
			p.errorf("line %d: risk_score %v, measurements imply %v", row.lineNum, score, want)
		}
	}
	return p
}

func validateOverrides(path string) *phase {
	p := &phase{name: "Override file parses"}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	overrides, err := store.NewOverrideStore(path, logger).Load(context.Background())
	if err != nil {
		p.errorf("%v", err)
		return p
	}
	for id, g := range overrides {
		if strings.TrimSpace(id) == "" {
			p.errorf("blank sensor id")
		}
		if g.Lat < -90 || g.Lat > 90 || g.Lon < -180 || g.Lon > 180 {
			p.errorf("%s: position (%v,%v) out of range", id, g.Lat, g.Lon)
		}
	}
	return p
}

func parseFloat(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func optional(s string) *float64 {
	if v, ok := parseFloat(s); ok {
		return &v
	}
	return nil
}
