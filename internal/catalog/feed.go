package catalog

import (
	"encoding/csv"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"
)

// ReadCSV parses a listing feed from CSV. The first row is the header;
// columns other than id, name, url, image_url, and price become listing
// attributes. Rows without an id are skipped with a warning.
func ReadCSV(r io.Reader) ([]Listing, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, eris.Wrap(err, "catalog: read csv header")
	}
	header = normalizeHeader(header)

	var listings []Listing
	line := 1
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "catalog: read csv row %d", line)
		}
		line++

		l := listingFromRecord(header, record)
		if l.ID == "" {
			zap.L().Warn("catalog: skipping feed row without id", zap.Int("row", line))
			continue
		}
		listings = append(listings, l)
	}
	return listings, nil
}

// ReadCSVFile parses a listing feed from a CSV file on disk.
func ReadCSVFile(path string) ([]Listing, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: open %s", path)
	}
	defer f.Close()
	return ReadCSV(f)
}

// ReadXLSX parses a listing feed from the first sheet of an XLSX workbook.
// Layout matches ReadCSV: header row first, then one listing per row.
func ReadXLSX(path string) ([]Listing, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: open xlsx")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.Errorf("catalog: %s has no sheets", path)
	}
	sheet := f.Sheets[0]
	if len(sheet.Rows) == 0 {
		return nil, eris.Errorf("catalog: %s first sheet is empty", path)
	}

	header := normalizeHeader(rowToStrings(sheet.Rows[0]))

	var listings []Listing
	for i, row := range sheet.Rows[1:] {
		l := listingFromRecord(header, rowToStrings(row))
		if l.ID == "" {
			zap.L().Warn("catalog: skipping feed row without id", zap.Int("row", i+2))
			continue
		}
		listings = append(listings, l)
	}
	return listings, nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}
