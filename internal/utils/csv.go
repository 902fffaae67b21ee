package utils

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"fxHistory/internal/domain"
	"fxHistory/internal/ports"
)

// CSVHeader is the column layout written by WriteBarsCSV.
var CSVHeader = []string{"time", "open", "high", "low", "close", "ticks", "spread", "volume"}

// TimeLayout formats bar times. Bar times are server time, they are printed without a zone.
const TimeLayout = "2006-01-02 15:04:05"

// WriteBarsCSV writes bars with prices formatted to digits decimals (digits < 0: shortest form).
func WriteBarsCSV(w io.Writer, bars []domain.Bar, digits int) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(CSVHeader); err != nil {
		return err
	}
	price := func(v float64) string { return strconv.FormatFloat(v, 'f', digits, 64) }
	for _, b := range bars {
		if err := writer.Write([]string{
			time.Unix(b.Time, 0).UTC().Format(TimeLayout),
			price(b.Open),
			price(b.High),
			price(b.Low),
			price(b.Close),
			strconv.FormatInt(b.Ticks, 10),
			strconv.FormatInt(int64(b.Spread), 10),
			strconv.FormatInt(b.Volume, 10),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteBarsCSVFile writes bars to a new file.
func WriteBarsCSVFile(filename string, bars []domain.Bar, digits int) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := WriteBarsCSV(file, bars, digits); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// ReadBarsCSV reads bars written by WriteBarsCSV. The time column may also hold Unix seconds; the
// spread and volume columns are optional. A header row is detected and skipped.
func ReadBarsCSV(r io.Reader) ([]domain.Bar, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var bars []domain.Bar
	for line := 1; ; line++ {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w: %w", line, ports.ErrInvalidArgument, err)
		}
		if line == 1 && len(rec) > 0 && strings.EqualFold(rec[0], CSVHeader[0]) {
			continue
		}
		b, err := parseBarRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w: %w", line, ports.ErrInvalidArgument, err)
		}
		bars = append(bars, b)
	}
	return bars, nil
}

func parseBarRecord(rec []string) (domain.Bar, error) {
	if len(rec) < 6 {
		return domain.Bar{}, fmt.Errorf("expected at least 6 columns, got %d", len(rec))
	}
	var b domain.Bar
	var err error
	if b.Time, err = parseTime(rec[0]); err != nil {
		return b, err
	}
	prices := []*float64{&b.Open, &b.High, &b.Low, &b.Close}
	for i, p := range prices {
		if *p, err = strconv.ParseFloat(rec[1+i], 64); err != nil {
			return b, fmt.Errorf("column %s: %w", CSVHeader[1+i], err)
		}
	}
	if b.Ticks, err = strconv.ParseInt(rec[5], 10, 64); err != nil {
		return b, fmt.Errorf("column ticks: %w", err)
	}
	if len(rec) > 6 && rec[6] != "" {
		spread, err := strconv.ParseInt(rec[6], 10, 32)
		if err != nil {
			return b, fmt.Errorf("column spread: %w", err)
		}
		b.Spread = int32(spread)
	}
	if len(rec) > 7 && rec[7] != "" {
		if b.Volume, err = strconv.ParseInt(rec[7], 10, 64); err != nil {
			return b, fmt.Errorf("column volume: %w", err)
		}
	}
	return b, nil
}

func parseTime(s string) (int64, error) {
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return secs, nil
	}
	for _, layout := range []string{TimeLayout, time.RFC3339, "2006.01.02 15:04"} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.Unix(), nil
		}
	}
	return 0, fmt.Errorf("unrecognized time %q", s)
}
