// Package pacs drives the vendor patient-imaging browser. The vendor
// application is a third-party SPA with no supported API: searches are
// performed by filling its own UI and observing the DOM, and pixel data
// is pulled through the detail endpoint its image viewer uses
// internally.
//
// An earlier revision spoke the vendor's internal RPC protocol directly;
// that was abandoned because the wire format is undocumented and breaks
// across vendor releases. Everything here works from rendered markup.
package pacs

import "go.opentelemetry.io/otel"

var tracer = otel.Tracer("scrapers/pacs")

// SeriesRecord is one acquisition run within a study.
type SeriesRecord struct {
	UID         string
	Description string
}

// StudyRecord is one imaging encounter. The instance UID is the natural
// key; rows with non-conforming UIDs never make it out of extraction.
type StudyRecord struct {
	UID         string
	Description string
	// Acquisition date, normalized to YYYYMMDD.
	Date        string
	Modality    string
	PatientName string
	Series      []SeriesRecord
}

// SearchResult is the outcome of one search invocation. Immutable after
// construction.
type SearchResult struct {
	Studies []StudyRecord
	// Distinct patient display names observed in the result table, in
	// first-seen order.
	PatientNames []string
}

// Labels of the vendor result tables. Columns are always resolved by
// header name; the vendor reorders them between releases.
const (
	HeaderStudyUID          = "Study Instance UID"
	HeaderStudyDescription  = "Study Description"
	HeaderStudyDate         = "Study Date"
	HeaderModality          = "Mod"
	HeaderPatientName       = "Patient Name"
	HeaderSeriesUID         = "Series Instance UID"
	HeaderSeriesDescription = "Series Description"
)

// Identifying attributes of the vendor search form.
const (
	SearchInputName   = "patientNameText"
	searchButtonLabel = "Search"
	dateRangeSelect   = "dateRangePreset"
	dateRangeAll      = "ALL"
)
