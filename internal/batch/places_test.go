package batch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func writeDelineation(t *testing.T, rows [][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("List 2")
	require.NoError(t, err)
	for _, values := range rows {
		row := sheet.AddRow()
		for _, v := range values {
			row.AddCell().SetString(v)
		}
	}
	path := filepath.Join(t.TempDir(), "list2.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestPlacesFromDelineation(t *testing.T) {
	path := writeDelineation(t, [][]string{
		{"List 2. CORE BASED STATISTICAL AREAS (CBSAs) AND PRINCIPAL CITIES"},
		{"Source: File prepared by U.S. Census Bureau"},
		{"CBSA Code", "CBSA Title", "Metropolitan/Micropolitan Statistical Area", "Principal City Name", "FIPS State Code"},
		{"10580", "Albany-Schenectady-Troy, NY", "Metropolitan Statistical Area", "Albany", "36"},
		{"10580", "Albany-Schenectady-Troy, NY", "Metropolitan Statistical Area", "Schenectady", "36"},
		{"10580", "Albany-Schenectady-Troy, NY", "Metropolitan Statistical Area", "Albany", "36"},
		{"", "", "", "Note: footnote row", ""},
		{"12060", "Atlanta-Sandy Springs-Alpharetta, GA", "Metropolitan Statistical Area", "Atlanta", "13"},
	})

	places, err := PlacesFromDelineation(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Albany, NY", "Schenectady, NY", "Atlanta, GA"}, places)
}

func TestPlacesFromDelineation_MissingColumns(t *testing.T) {
	path := writeDelineation(t, [][]string{
		{"title"},
		{"source"},
		{"CBSA Code", "Principal City Name"},
		{"10580", "Albany"},
	})
	_, err := PlacesFromDelineation(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CBSA Title")
}

func TestPlacesFromDelineation_MissingFile(t *testing.T) {
	_, err := PlacesFromDelineation(filepath.Join(t.TempDir(), "nope.xlsx"))
	require.Error(t, err)
}

func TestPlacesFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "places.txt")
	require.NoError(t, os.WriteFile(path, []byte("# capital district\nAlbany, NY\n\n  Troy, NY  \nAlbany, NY\n"), 0o644))

	places, err := PlacesFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Albany, NY", "Troy, NY"}, places)
}

func TestPlacesFromFile_Missing(t *testing.T) {
	_, err := PlacesFromFile(filepath.Join(t.TempDir(), "missing.txt"))
	require.Error(t, err)
}
