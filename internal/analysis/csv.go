// Package analysis summarizes the CSV payloads carried by DATA_REQUEST
// messages.
//
// A payload is comma separated, one record per line. Column 0 holds a
// timestamp in the form "02.01.2006 15:04:05"; columns 1 and 2 hold numbers.
// The summary reports the row and column counts and, for the row with the
// latest timestamp, the ratio column1 / column2.
package analysis

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the timestamp layout of column 0.
const DateLayout = "02.01.2006 15:04:05"

// ErrEmpty is returned when a payload has no rows or no columns.
var ErrEmpty = errors.New("csv has no rows or columns")

// Summary is the result of analyzing one payload.
type Summary struct {
	Rows    int
	Columns int

	// Latest is the greatest timestamp found in column 0; zero if none parsed
	Latest time.Time

	// Ratio is column1 / column2 of the Latest row. HasRatio is false when
	// that row had no usable numbers or a zero divisor.
	Ratio    float64
	HasRatio bool

	// Skipped counts rows whose timestamp could not be parsed
	Skipped int
}

// Response is the DATA_RESPONSE payload for the summary: the row count.
func (s Summary) Response() string {
	return strconv.Itoa(s.Rows)
}

func (s Summary) String() string {
	latest := "none"
	if !s.Latest.IsZero() {
		latest = s.Latest.Format(DateLayout)
	}
	ratio := "n/a"
	if s.HasRatio {
		ratio = strconv.FormatFloat(s.Ratio, 'f', 6, 64)
	}
	return fmt.Sprintf("rows=%d cols=%d latest=%s ratio=%s", s.Rows, s.Columns, latest, ratio)
}

// Analyze parses and summarizes a payload. A payload without rows or columns
// returns the partial summary together with ErrEmpty.
func Analyze(data []byte) (Summary, error) {
	records, err := parse(data)
	if err != nil {
		return Summary{}, err
	}

	var sum Summary
	sum.Rows = len(records)
	if sum.Rows > 0 {
		sum.Columns = len(records[0])
	}
	if sum.Rows == 0 || sum.Columns == 0 {
		return sum, ErrEmpty
	}

	for _, rec := range records {
		ts, err := time.ParseInLocation(DateLayout, rec[0], time.Local)
		if err != nil {
			sum.Skipped++
			continue
		}
		if !ts.After(sum.Latest) {
			continue
		}
		sum.Latest = ts
		sum.Ratio, sum.HasRatio = ratio(rec)
	}
	return sum, nil
}

// Validate checks that data looks like an analyzable payload.
func Validate(data []byte) error {
	_, err := Analyze(data)
	return err
}

func parse(data []byte) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	r.ReuseRecord = false

	var records [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse csv: %w", err)
		}
		rec = compact(rec)
		if len(rec) == 0 {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// compact drops empty fields so "a,,b" reads as two fields.
func compact(rec []string) []string {
	out := rec[:0]
	for _, f := range rec {
		f = strings.TrimSpace(f)
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

func ratio(rec []string) (float64, bool) {
	if len(rec) < 3 {
		return 0, false
	}
	d1, err := strconv.ParseFloat(rec[1], 64)
	if err != nil {
		return 0, false
	}
	d2, err := strconv.ParseFloat(rec[2], 64)
	if err != nil || d2 == 0 {
		return 0, false
	}
	return d1 / d2, true
}
