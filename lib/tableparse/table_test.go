package tableparse

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestIsUID(t *testing.T) {
	conforming := []string{
		"1.2.840.99999999999999999999",
		"2.16.840.1.113669.632.20.1211.10000357775",
		"  1.2.840.10008.5.1.4.1.1.7.99999  ",
	}
	for _, s := range conforming {
		require.True(t, IsUID(s), s)
	}

	nonConforming := []string{
		"",
		"1.2.840",                        // too short
		"3.2.840.99999999999999999999",   // wrong leading digit
		"1.2.840.abc99999999999999999",   // non-numeric group
		"12840999999999999999999999",     // no dotted groups
		"Study Instance UID",             // header text
		".1.2.840.9999999999999999999",   // leading dot
		"1.2.840.9999999999999999999.",   // trailing dot
	}
	for _, s := range nonConforming {
		require.False(t, IsUID(s), s)
	}
}

func TestNormalizeDate(t *testing.T) {
	require.Equal(t, "20260126", NormalizeDate("2026-01-26 05:33 AM"))
	require.Equal(t, "20260126", NormalizeDate("2026-01-26"))
	// best-effort fallback for unparseable forms
	require.Equal(t, "01262026", NormalizeDate("01/26/2026"))
	require.Equal(t, "unknown", NormalizeDate("unknown"))
}

const studyTableHTML = `
<html><body>
<div>unrelated</div>
<table>
	<tr><td>decoration banner</td></tr>
	<tr>
		<th>Patient Name</th><th>Study Date</th><th>Mod</th>
		<th>Study Description</th><th>Study Instance UID</th>
	</tr>
	<tr>
		<td>SMITH, JOHN</td><td>2026-01-26 05:33 AM</td><td>CR</td>
		<td>Lumbar Spine</td><td>1.2.840.99999999999999999999</td>
	</tr>
	<tr><td colspan="5">spacer</td></tr>
	<tr>
		<td>DOE, JANE</td><td>2025-11-02 01:05 PM</td><td>CT</td>
		<td>CT Chest</td><td>1.2.840.11111111111111111111</td>
	</tr>
</table>
</body></html>`

func parseDoc(t *testing.T, html string) *goquery.Document {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func TestParseRowsHeaderMapped(t *testing.T) {
	doc := parseDoc(t, studyTableHTML)

	table := FindTable(doc, "Study Instance UID")
	require.NotNil(t, table)

	records := ParseRows(table, "Study Instance UID", []string{
		"Study Description", "Study Date", "Mod", "Patient Name",
	})
	require.Len(t, records, 2)

	// scenario: columns resolved by header name despite the shuffled
	// column order in the fixture
	require.Equal(t, "1.2.840.99999999999999999999", records[0]["Study Instance UID"])
	require.Equal(t, "Lumbar Spine", records[0]["Study Description"])
	require.Equal(t, "CR", records[0]["Mod"])
	require.Equal(t, "SMITH, JOHN", records[0]["Patient Name"])
	require.Equal(t, "20260126", NormalizeDate(records[0]["Study Date"]))

	require.Equal(t, "1.2.840.11111111111111111111", records[1]["Study Instance UID"])
}

func TestParseRowsIdempotent(t *testing.T) {
	doc := parseDoc(t, studyTableHTML)
	columns := []string{"Study Description", "Study Date", "Mod", "Patient Name"}

	first := ParseRows(FindTable(doc, "Study Instance UID"), "Study Instance UID", columns)
	second := ParseRows(FindTable(doc, "Study Instance UID"), "Study Instance UID", columns)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("re-parsing an unchanged table changed the records:\n%s", diff)
	}
}

func TestFindTableMissing(t *testing.T) {
	doc := parseDoc(t, "<html><body><table><tr><td>other</td></tr></table></body></html>")
	require.Nil(t, FindTable(doc, "Study Instance UID"))
	require.Empty(t, ParseRows(nil, "Study Instance UID", nil))
}
