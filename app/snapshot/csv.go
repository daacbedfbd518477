package snapshot

import (
	"bufio"
	"cmp"
	"encoding/csv"
	"errors"
	"io"
	"os"

	"github.com/mattanmr/job-posting-aggregator/app/errs"
	"github.com/mattanmr/job-posting-aggregator/app/jobs"
)

const (
	DescriptionLimit   = 500
	DefaultPreviewRows = 100
	MaxPreviewRows     = 1000
)

var Header = []string{
	"keyword",
	"id",
	"title",
	"company",
	"location",
	"diploma_required",
	"years_experience",
	"url",
	"posted_date",
	"source",
	"description",
}

// Preview is the head of a snapshot.
type Preview struct {
	Filename  string     `json:"filename"`
	Headers   []string   `json:"headers"`
	Rows      [][]string `json:"rows"`
	TotalRows int        `json:"total_rows"`
	HasMore   bool       `json:"has_more"`
}

func row(r jobs.Record) []string {
	return []string{
		r.Keyword,
		r.ID,
		r.Title,
		r.Company,
		r.Location,
		cmp.Or(r.DiplomaRequired, jobs.NotSpecified),
		cmp.Or(r.YearsExperience, jobs.NotSpecified),
		r.URL,
		cmp.Or(r.PostDate, jobs.NotSpecified),
		r.Source,
		truncate(r.Description, DescriptionLimit),
	}
}

func writeRecords(w io.Writer, records []jobs.Record) (int, error) {
	bw := bufio.NewWriter(w)
	cw := csv.NewWriter(bw)

	if err := cw.Write(Header); err != nil {
		return 0, err
	}
	for _, r := range records {
		if err := cw.Write(row(r)); err != nil {
			return 0, err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, err
	}
	if err := bw.Flush(); err != nil {
		return 0, err
	}
	return len(records), nil
}

func newReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(bufio.NewReader(r))
	cr.FieldsPerRecord = -1
	return cr
}

// countRows streams the file and counts data rows (header excluded).
func countRows(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	cr := newReader(f)
	cr.ReuseRecord = true

	n := -1
	for {
		_, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, err
		}
		n++
	}
	return max(n, 0), nil
}

// Preview returns the header and at most maxRows data rows. The file is
// streamed; rows past the cap are only counted.
func (s *Store) Preview(filename string, maxRows int) (*Preview, error) {
	if maxRows <= 0 {
		maxRows = DefaultPreviewRows
	}
	if maxRows > MaxPreviewRows {
		maxRows = MaxPreviewRows
	}

	path, err := s.Resolve(filename)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errs.Wrap(errs.ErrStorage, err, "failed to open snapshot")
	}
	defer f.Close()

	cr := newReader(f)

	headers, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return &Preview{Filename: filename, Headers: []string{}, Rows: [][]string{}}, nil
	}
	if err != nil {
		return nil, errs.Wrap(errs.ErrStorage, err, "failed to parse snapshot header")
	}

	preview := &Preview{
		Filename: filename,
		Headers:  headers,
		Rows:     make([][]string, 0, min(maxRows, 64)),
	}

	total := 0
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, errs.Wrap(errs.ErrStorage, err, "failed to parse snapshot row %d", total+1)
		}
		if total < maxRows {
			preview.Rows = append(preview.Rows, rec)
		} else if total == maxRows {
			// Past the cap only the count matters.
			cr.ReuseRecord = true
		}
		total++
	}

	preview.TotalRows = total
	preview.HasMore = total > maxRows
	return preview, nil
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
