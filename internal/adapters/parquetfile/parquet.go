// Package parquetfile exports history bars to Parquet files.
package parquetfile

import (
	"fmt"
	"os"
	"path/filepath"

	"fxHistory/internal/domain"
	"fxHistory/internal/ports"

	"github.com/parquet-go/parquet-go"
)

// Extension of the exported files.
const Extension = "parquet"

// Row is the Parquet schema of one exported bar.
type Row struct {
	Symbol string  `parquet:"symbol,dict"`
	Period int32   `parquet:"period"` // timeframe in minutes
	Time   int64   `parquet:"t"`      // Unix seconds, server time base
	Open   float64 `parquet:"o"`
	High   float64 `parquet:"h"`
	Low    float64 `parquet:"l"`
	Close  float64 `parquet:"c"`
	Ticks  int64   `parquet:"ticks"`
	Spread int32   `parquet:"spread,optional"`
	Volume int64   `parquet:"v,optional"`
}

// Rows converts bars of one symbol and timeframe.
func Rows(symbol string, tf domain.Timeframe, bars []domain.Bar) []Row {
	rows := make([]Row, len(bars))
	for i, b := range bars {
		rows[i] = Row{
			Symbol: symbol,
			Period: int32(tf),
			Time:   b.Time,
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Ticks:  b.Ticks,
			Spread: b.Spread,
			Volume: b.Volume,
		}
	}
	return rows
}

// Bar converts a row back to a bar.
func (r Row) Bar() domain.Bar {
	return domain.Bar{
		Time:   r.Time,
		Open:   r.Open,
		High:   r.High,
		Low:    r.Low,
		Close:  r.Close,
		Ticks:  r.Ticks,
		Spread: r.Spread,
		Volume: r.Volume,
	}
}

// WriteBars writes the bars of one symbol and timeframe to path.
func WriteBars(path, symbol string, tf domain.Timeframe, bars []domain.Bar) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w: %w", filepath.Dir(path), ports.ErrIO, err)
	}
	if err := parquet.WriteFile(path, Rows(symbol, tf, bars)); err != nil {
		return fmt.Errorf("writing parquet %s: %w: %w", path, ports.ErrIO, err)
	}
	return nil
}

// ReadRows reads all rows of an exported file.
func ReadRows(path string) ([]Row, error) {
	rows, err := parquet.ReadFile[Row](path)
	if err != nil {
		return nil, fmt.Errorf("reading parquet %s: %w: %w", path, ports.ErrFormat, err)
	}
	return rows, nil
}
