package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// File-level problems. Handlers report these as client errors.
var (
	ErrUnsupportedFormat   = errors.New("the file must be a file of type: xlsx, csv")
	ErrEmptyFile           = errors.New("the file has no heading row")
	ErrMissingActionColumn = errors.New("the heading row has no action column")
)

// FileSource is a Source backed by an open file that must be closed.
type FileSource interface {
	Source
	io.Closer
}

// Open picks a parser from the file extension of name.
func Open(name string, r io.Reader) (FileSource, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		src, err := NewCSVSource(r)
		if err != nil {
			return nil, err
		}
		return src, nil
	case ".xlsx":
		src, err := NewXLSXSource(r)
		if err != nil {
			return nil, err
		}
		return src, nil
	default:
		return nil, ErrUnsupportedFormat
	}
}

// headingKey normalises a heading cell: BOM stripped, trimmed, lowercased,
// and runs of spaces, hyphens or underscores collapsed to one "_".
// "Study Course" and "study-course" both become "study_course".
func headingKey(cell string) string {
	cell = strings.TrimPrefix(cell, "\ufeff")
	cell = strings.ToLower(strings.TrimSpace(cell))

	var b strings.Builder
	sep := false
	for _, r := range cell {
		if r == ' ' || r == '-' || r == '_' {
			sep = true
			continue
		}
		if sep && b.Len() > 0 {
			b.WriteByte('_')
		}
		sep = false
		b.WriteRune(r)
	}
	return b.String()
}

// columns maps heading keys to their position.
type columns struct {
	index map[string]int
	width int
}

func newColumns(header []string) (columns, error) {
	c := columns{index: make(map[string]int, len(header)), width: len(header)}
	for i, cell := range header {
		key := headingKey(cell)
		if key == "" {
			continue
		}
		// First occurrence wins for duplicated headings.
		if _, ok := c.index[key]; !ok {
			c.index[key] = i
		}
	}
	if _, ok := c.index["action"]; !ok {
		return columns{}, ErrMissingActionColumn
	}
	return c, nil
}

func (c columns) cell(record []string, key string) string {
	i, ok := c.index[key]
	if !ok || i >= len(record) {
		return ""
	}
	return record[i]
}

func (c columns) row(line int, record []string) Row {
	return Row{
		Line:        line,
		Action:      c.cell(record, "action"),
		Name:        c.cell(record, "name"),
		Email:       c.cell(record, "email"),
		Address:     c.cell(record, "address"),
		StudyCourse: c.cell(record, "study_course"),
	}
}

func blank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// CSVSource streams rows from comma-separated input with a heading row.
type CSVSource struct {
	reader *csv.Reader
	cols   columns
}

// NewCSVSource reads the heading row from r.
func NewCSVSource(r io.Reader) (*CSVSource, error) {
	reader := csv.NewReader(r)
	// Width is checked per row so a bad row does not end the stream.
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyFile
	}
	if err != nil {
		return nil, fmt.Errorf("read csv heading row: %w", err)
	}

	cols, err := newColumns(header)
	if err != nil {
		return nil, err
	}
	return &CSVSource{reader: reader, cols: cols}, nil
}

// Next returns the next non-blank row.
func (s *CSVSource) Next() (Row, error) {
	for {
		record, err := s.reader.Read()
		if errors.Is(err, io.EOF) {
			return Row{}, io.EOF
		}
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			return Row{}, &RowError{Line: parseErr.StartLine, Err: parseErr.Err}
		}
		if err != nil {
			return Row{}, err
		}

		line, _ := s.reader.FieldPos(0)
		if len(record) > s.cols.width {
			return Row{}, &RowError{
				Line: line,
				Err:  fmt.Errorf("has %d fields, heading row has %d", len(record), s.cols.width),
			}
		}
		if blank(record) {
			continue
		}
		return s.cols.row(line, record), nil
	}
}

// Close is a no-op; the caller owns the underlying reader.
func (s *CSVSource) Close() error { return nil }

// XLSXSource streams rows from the first worksheet of an .xlsx workbook.
type XLSXSource struct {
	file *excelize.File
	rows *excelize.Rows
	cols columns
	line int
}

// NewXLSXSource opens the workbook and reads the heading row of its first
// sheet.
func NewXLSXSource(r io.Reader) (_ *XLSXSource, err error) {
	file, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer func() {
		if err != nil {
			file.Close()
		}
	}()

	sheets := file.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyFile
	}

	rows, err := file.Rows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	if !rows.Next() {
		if err := rows.Error(); err != nil {
			return nil, fmt.Errorf("read xlsx heading row: %w", err)
		}
		return nil, ErrEmptyFile
	}
	header, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read xlsx heading row: %w", err)
	}

	cols, err := newColumns(header)
	if err != nil {
		return nil, err
	}
	return &XLSXSource{file: file, rows: rows, cols: cols, line: 1}, nil
}

// Next returns the next non-blank row.
func (s *XLSXSource) Next() (Row, error) {
	for s.rows.Next() {
		s.line++
		record, err := s.rows.Columns()
		if err != nil {
			return Row{}, &RowError{Line: s.line, Err: err}
		}
		if blank(record) {
			continue
		}
		return s.cols.row(s.line, record), nil
	}
	if err := s.rows.Error(); err != nil {
		return Row{}, err
	}
	return Row{}, io.EOF
}

// Close releases the sheet iterator and the workbook.
func (s *XLSXSource) Close() error {
	rowsErr := s.rows.Close()
	if err := s.file.Close(); err != nil {
		return err
	}
	return rowsErr
}
