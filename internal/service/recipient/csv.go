package recipient

import (
	"bytes"
	"encoding/csv"
	stderrors "errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/jwalitptl/campaign-api/pkg/errors"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// headerRow is the 1-based number of the header; data rows follow it.
const headerRow = 1

type fileRow struct {
	number int
	record map[string]string
}

// ParseDelimiter maps the upload form value to a field separator.
func ParseDelimiter(s string) (rune, error) {
	switch s {
	case "", ",":
		return ',', nil
	case ";":
		return ';', nil
	case "\t", "tab", `\t`:
		return '\t', nil
	case "|":
		return '|', nil
	default:
		return 0, errors.Format(fmt.Sprintf("unsupported delimiter %q", s), nil)
	}
}

// parseDelimited reads the whole file before returning so that a structural
// problem anywhere rejects the upload as a unit.
func parseDelimited(r io.Reader, delimiter rune) ([]fileRow, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Format("failed to read file", err)
	}
	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		return nil, errors.Format("file must be UTF-8 encoded", nil)
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if stderrors.Is(err, io.EOF) {
		return nil, errors.Format("file must have a 'phone_number' column", nil)
	}
	if err != nil {
		return nil, errors.Format("malformed file", err)
	}

	columns := make([]string, len(header))
	seen := make(map[string]struct{}, len(header))
	hasPhone := false
	for i, h := range header {
		columns[i] = strings.TrimSpace(h)
		if columns[i] == "" {
			continue
		}
		if _, dup := seen[columns[i]]; dup {
			return nil, errors.Format(fmt.Sprintf("duplicate column %q", columns[i]), nil)
		}
		seen[columns[i]] = struct{}{}
		if columns[i] == FieldPhoneNumber {
			hasPhone = true
		}
	}
	if !hasPhone {
		return nil, errors.Format("file must have a 'phone_number' column", nil)
	}

	var rows []fileRow
	for n := headerRow + 1; ; n++ {
		cells, err := reader.Read()
		if stderrors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, errors.Format("malformed file", err)
		}

		record := make(map[string]string, len(columns))
		for i, col := range columns {
			if col == "" {
				continue
			}
			if i < len(cells) {
				record[col] = cells[i]
			} else {
				record[col] = ""
			}
		}
		rows = append(rows, fileRow{number: n, record: record})
	}
	return rows, nil
}
