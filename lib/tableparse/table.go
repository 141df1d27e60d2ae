// Package tableparse locates result tables inside uncontrolled vendor
// markup and decodes their rows into column-keyed records.
//
// Tables are identified by the exact text of a known header cell, and
// columns are resolved by header name rather than fixed position, since
// the vendor is free to reorder them between releases.
package tableparse

import (
	"regexp"
	"strings"

	"pacs-preloader/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

// Record is one decoded data row, keyed by header label.
type Record map[string]string

// FindTable returns the first table containing a cell whose trimmed text
// equals headerLabel exactly, or nil when no table qualifies. Tables are
// assumed not to nest ambiguously; the first match wins.
func FindTable(doc *goquery.Document, headerLabel string) *goquery.Selection {
	var found *goquery.Selection
	doc.Find("td, th").EachWithBreak(func(_ int, cell *goquery.Selection) bool {
		if htmlutil.CellText(cell) != headerLabel {
			return true
		}
		table := cell.Closest("table")
		if table.Length() == 0 {
			return true
		}
		found = table
		return false
	})
	return found
}

// ParseRows decodes the data rows of a table located by FindTable.
//
// The header row is the first row whose decoded cell texts contain
// keyLabel; column order is captured from it. Every row after the header
// row is a data row, accepted only when its key cell passes the UID
// structural check — spacer and decoration rows silently fall out here.
// Each accepted record maps keyLabel and every requested column label to
// that row's cell text.
func ParseRows(table *goquery.Selection, keyLabel string, columns []string) []Record {
	if table == nil || table.Length() == 0 {
		return nil
	}

	var records []Record
	columnIndex := map[string]int(nil)
	keyIndex := -1

	table.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td, th")

		if columnIndex == nil {
			header := indexHeaderRow(cells, keyLabel, columns)
			if header != nil {
				columnIndex = header
				keyIndex = header[keyLabel]
			}
			return
		}

		texts := make([]string, cells.Length())
		cells.Each(func(i int, cell *goquery.Selection) {
			texts[i] = htmlutil.CellText(cell)
		})
		if keyIndex >= len(texts) || !IsUID(texts[keyIndex]) {
			return
		}

		record := Record{}
		for label, idx := range columnIndex {
			if idx < len(texts) {
				record[label] = texts[idx]
			}
		}
		records = append(records, record)
	})

	return records
}

func indexHeaderRow(cells *goquery.Selection, keyLabel string, columns []string) map[string]int {
	index := map[string]int{}
	cells.Each(func(i int, cell *goquery.Selection) {
		text := htmlutil.CellText(cell)
		if text == keyLabel {
			index[keyLabel] = i
			return
		}
		for _, label := range columns {
			if text == label {
				index[label] = i
				return
			}
		}
	})
	if _, ok := index[keyLabel]; !ok {
		return nil
	}
	return index
}

var isoDatePrefix = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})`)
var digitsOnly = regexp.MustCompile(`\D`)

// NormalizeDate reduces a cell like "2026-01-26 05:33 AM" to "20260126".
// Cells that don't start with a YYYY-MM-DD prefix degrade to a
// best-effort digit substring instead of failing the row.
func NormalizeDate(cell string) string {
	cell = strings.TrimSpace(cell)
	if groups := isoDatePrefix.FindStringSubmatch(cell); groups != nil {
		return groups[1] + groups[2] + groups[3]
	}
	digits := digitsOnly.ReplaceAllString(cell, "")
	if len(digits) >= 8 {
		return digits[:8]
	}
	return cell
}
