// Package tradelog appends every simulated or live fill to a durable CSV
// trade log and periodically snapshots the equity curve (spec.md section
// 6, "Persisted state").
//
// The CSV writer is grounded on `chidi150c-coinbase/backtest.go`'s
// `loadCSV` — the same header/column idiom, inverted from a reader into
// an append-only writer — and the equity-curve snapshot's atomic
// write-then-rename is grounded on the teacher's `internal/store.Store`,
// which persists position JSON the same crash-safe way.
package tradelog

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/glft-mm/glft-mm/pkg/mm"
)

// Columns are fixed by spec.md section 6: "ts, side, price, size, fee,
// q_after, cash_after, reason".
var header = []string{"ts", "side", "price", "size", "fee", "q_after", "cash_after", "reason"}

// Writer appends trade rows to a CSV file, flushing after every row so a
// crash never loses more than the in-flight write.
type Writer struct {
	f   *os.File
	w   *csv.Writer
}

// Open creates (or appends to) the trade log at path, writing the header
// row only when the file is new.
func Open(path string) (*Writer, error) {
	_, statErr := os.Stat(path)
	needsHeader := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("tradelog: open %s: %w", path, err)
	}
	w := csv.NewWriter(f)
	tw := &Writer{f: f, w: w}
	if needsHeader {
		if err := w.Write(header); err != nil {
			f.Close()
			return nil, fmt.Errorf("tradelog: write header: %w", err)
		}
		w.Flush()
	}
	return tw, nil
}

// Row is one append-only trade log entry.
type Row struct {
	Fill      mm.Fill
	Inventory float64
	Cash      float64
	Reason    string
}

// Append writes one trade row and flushes immediately.
func (w *Writer) Append(row Row) error {
	record := []string{
		row.Fill.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		string(row.Fill.Side),
		row.Fill.Price.String(),
		row.Fill.Size.String(),
		row.Fill.Fee.String(),
		strconv.FormatFloat(row.Inventory, 'f', -1, 64),
		strconv.FormatFloat(row.Cash, 'f', -1, 64),
		row.Reason,
	}
	if err := w.w.Write(record); err != nil {
		return fmt.Errorf("tradelog: write row: %w", err)
	}
	w.w.Flush()
	return w.w.Error()
}

// Close flushes and closes the underlying file.
func (w *Writer) Close() error {
	w.w.Flush()
	return w.f.Close()
}

// EquitySnapshot is one epoch-granularity equity curve sample.
type EquitySnapshot struct {
	TimestampUnix int64   `json:"ts"`
	Equity        float64 `json:"equity"`
	Inventory     float64 `json:"inventory"`
	Cash          float64 `json:"cash"`
}

// SnapshotEquity atomically persists the latest equity curve point,
// write-to-temp-then-rename exactly like the teacher's
// internal/store.Store.SavePosition, so a crash mid-write never corrupts
// the last good snapshot.
func SnapshotEquity(dir string, snap EquitySnapshot) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("tradelog: create snapshot dir: %w", err)
	}
	path := filepath.Join(dir, "equity.json")
	tmp := path + ".tmp"
	data := []byte(fmt.Sprintf(`{"ts":%d,"equity":%s,"inventory":%s,"cash":%s}`,
		snap.TimestampUnix,
		strconv.FormatFloat(snap.Equity, 'f', -1, 64),
		strconv.FormatFloat(snap.Inventory, 'f', -1, 64),
		strconv.FormatFloat(snap.Cash, 'f', -1, 64),
	))
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("tradelog: write snapshot: %w", err)
	}
	return os.Rename(tmp, path)
}

// LoadCandles reads an OHLCV CSV with headers time|timestamp, open, high,
// low, close, volume, interval_s (interval_s optional, defaults to the
// gap between consecutive rows). This is `chidi150c-coinbase/backtest.go`'s
// `loadCSV` read path, unchanged in shape, retargeted from that file's
// Candle type to mm.Candle.
func LoadCandles(path string) ([]mm.Candle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("tradelog: open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var out []mm.Candle
	var headers []string
	rowIdx := 0

	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("tradelog: read row: %w", err)
		}
		if rowIdx == 0 {
			headers = rec
			rowIdx++
			continue
		}
		row := map[string]string{}
		for j, h := range headers {
			k := strings.ToLower(strings.TrimSpace(h))
			if j < len(rec) {
				row[k] = strings.TrimSpace(rec[j])
			}
		}
		ts := firstNonEmpty(row, "time", "timestamp")
		op := firstNonEmpty(row, "open")
		cp := firstNonEmpty(row, "close")
		if ts == "" || op == "" || cp == "" {
			continue
		}
		tt, err := parseTimeFlexible(ts)
		if err != nil {
			continue
		}
		o, _ := strconv.ParseFloat(op, 64)
		h, _ := strconv.ParseFloat(firstNonEmpty(row, "high"), 64)
		l, _ := strconv.ParseFloat(firstNonEmpty(row, "low"), 64)
		c, _ := strconv.ParseFloat(cp, 64)
		v, _ := strconv.ParseFloat(firstNonEmpty(row, "volume", "vol"), 64)

		var interval time.Duration
		if is := firstNonEmpty(row, "interval_s"); is != "" {
			if secs, err := strconv.ParseFloat(is, 64); err == nil {
				interval = time.Duration(secs * float64(time.Second))
			}
		}

		out = append(out, mm.Candle{
			Open: o, High: h, Low: l, Close: c, Volume: v,
			Start: tt, Interval: interval,
		})
		rowIdx++
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	fillIntervals(out)
	return out, nil
}

// fillIntervals derives any zero Interval from the gap to the next
// candle, and repeats the last known gap for the final row.
func fillIntervals(candles []mm.Candle) {
	for i := range candles {
		if candles[i].Interval > 0 {
			continue
		}
		switch {
		case i+1 < len(candles):
			candles[i].Interval = candles[i+1].Start.Sub(candles[i].Start)
		case i > 0:
			candles[i].Interval = candles[i].Start.Sub(candles[i-1].Start)
		default:
			candles[i].Interval = time.Minute
		}
	}
}

// parseTimeFlexible accepts RFC3339 or UNIX seconds, matching
// chidi150c-coinbase's loader.
func parseTimeFlexible(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(sec, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("tradelog: bad time %q", s)
}

// firstNonEmpty returns the first non-empty value among keys in m.
func firstNonEmpty(m map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := m[k]; v != "" {
			return v
		}
	}
	return ""
}
