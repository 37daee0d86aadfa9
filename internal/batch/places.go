package batch

import (
	"bufio"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// Delineation file layout (Census CBSA "List 2"): two title rows precede
// the header row.
const (
	delineationSkipRows = 2
	principalCityColumn = "Principal City Name"
	cbsaTitleColumn     = "CBSA Title"
	stateSuffixLength   = 2
)

// PlacesFromDelineation reads a CBSA principal-city delineation workbook and
// returns "City, ST" names in file order without duplicates. Rows without a
// CBSA title are skipped.
func PlacesFromDelineation(path string) ([]string, error) {
	xlFile, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "batch: open delineation %s", path)
	}
	if len(xlFile.Sheets) == 0 {
		return nil, eris.New("batch: delineation has no sheets")
	}
	sheet := xlFile.Sheets[0]
	if len(sheet.Rows) <= delineationSkipRows {
		return nil, eris.New("batch: delineation sheet is empty")
	}

	headerRow := sheet.Rows[delineationSkipRows]
	cityIdx, titleIdx := -1, -1
	for i, cell := range headerRow.Cells {
		switch strings.TrimSpace(cell.String()) {
		case principalCityColumn:
			cityIdx = i
		case cbsaTitleColumn:
			titleIdx = i
		}
	}
	if cityIdx < 0 || titleIdx < 0 {
		return nil, eris.Errorf("batch: delineation header must contain %q and %q", principalCityColumn, cbsaTitleColumn)
	}

	var places []string
	seen := make(map[string]bool)
	for _, row := range sheet.Rows[delineationSkipRows+1:] {
		if row == nil {
			continue
		}
		title := cellText(row, titleIdx)
		city := cellText(row, cityIdx)
		if title == "" || city == "" || len(title) < stateSuffixLength {
			continue
		}
		place := city + ", " + title[len(title)-stateSuffixLength:]
		if seen[place] {
			continue
		}
		seen[place] = true
		places = append(places, place)
	}
	return places, nil
}

func cellText(row *xlsx.Row, idx int) string {
	if idx >= len(row.Cells) || row.Cells[idx] == nil {
		return ""
	}
	return strings.TrimSpace(row.Cells[idx].String())
}

// PlacesFromFile reads one place per line. Blank lines and lines starting
// with '#' are ignored; duplicates keep their first position.
func PlacesFromFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "batch: open places file %s", path)
	}
	defer f.Close() //nolint:errcheck

	var places []string
	seen := make(map[string]bool)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") || seen[line] {
			continue
		}
		seen[line] = true
		places = append(places, line)
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrapf(err, "batch: read places file %s", path)
	}
	return places, nil
}
