package pacs

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"pacs-preloader/lib/dompage"
	"pacs-preloader/lib/poll"
	"pacs-preloader/lib/tableparse"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/codes"
)

type SearchOptions struct {
	// Optional date of birth filter, any common textual form. Applied
	// only after every row has been expanded.
	DOB string
	// When false (the default), a DOB filter that would eliminate every
	// result keeps the unfiltered set instead: over-inclusion is
	// preferred to silently losing a patient whose DOB renders oddly.
	StrictDOB bool

	// How long to wait for the result table to reflect the submitted
	// query. Defaults to 20s.
	ResultTimeout time.Duration
	// How long to wait for the series sub-table to react to a row
	// activation. Defaults to 4s.
	SeriesTimeout time.Duration
	// Poll spacing. Defaults to 500ms.
	Interval time.Duration
}

func (o *SearchOptions) fillDefaults() {
	if o.ResultTimeout == 0 {
		o.ResultTimeout = time.Second * 20
	}
	if o.SeriesTimeout == 0 {
		o.SeriesTimeout = time.Second * 4
	}
	if o.Interval == 0 {
		o.Interval = time.Millisecond * 500
	}
}

var initialToken = regexp.MustCompile(`^[A-Za-z]\.?$`)

// NormalizeQueryName reduces a display name to the form the vendor
// search matches on: "Last, FirstToken" with any trailing single-letter
// middle initial stripped. The vendor matches by prefix on a normalized
// last-name field and tolerates only the first given name, so this
// trades a little precision for recall.
func NormalizeQueryName(name string) string {
	name = strings.TrimSpace(name)
	last, given, hasComma := strings.Cut(name, ",")
	if !hasComma {
		return stripTrailingInitial(name)
	}

	tokens := strings.Fields(stripTrailingInitial(given))
	if len(tokens) == 0 {
		return strings.TrimSpace(last)
	}
	return strings.TrimSpace(last) + ", " + tokens[0]
}

func stripTrailingInitial(s string) string {
	tokens := strings.Fields(s)
	if len(tokens) > 1 && initialToken.MatchString(tokens[len(tokens)-1]) {
		tokens = tokens[:len(tokens)-1]
	}
	return strings.Join(tokens, " ")
}

// Search runs one patient query against the hosting document: fills the
// search form, submits it, waits for the result table to reflect the
// query, then expands every result row sequentially to capture its
// series.
//
// "No studies found" is a normal outcome and returns an empty result,
// not an error. Row expansion is strictly sequential: the target UI has
// exactly one visible state and concurrent interaction corrupts it.
func Search(ctx context.Context, doc dompage.Document, name string, opts SearchOptions) (*SearchResult, error) {
	ctx, span := tracer.Start(ctx, "Search")
	defer span.End()

	opts.fillDefaults()
	query := NormalizeQueryName(name)

	// Best-effort: widen the date range before submitting. Not every
	// vendor skin has the control.
	if err := doc.SelectOption(ctx, dateRangeSelect, dateRangeAll); err != nil {
		slog.DebugContext(ctx, "no date range control", "err", err)
	}

	before, err := doc.Snapshot(ctx)
	if err != nil {
		span.SetStatus(codes.Error, "snapshot before submit")
		return nil, fmt.Errorf("snapshot page: %w", err)
	}
	priorUIDs := studyUIDSet(studiesFromSnapshot(before))

	if err := doc.SetInput(ctx, SearchInputName, query); err != nil {
		span.SetStatus(codes.Error, "search input missing")
		return nil, fmt.Errorf("fill search input: %w", err)
	}
	if err := doc.ClickButton(ctx, searchButtonLabel); err != nil {
		span.SetStatus(codes.Error, "submit control missing")
		return nil, fmt.Errorf("press search: %w", err)
	}

	// The vendor app emits no completion event; the only signal that the
	// search finished is the result table changing. Either a row absent
	// from the pre-submit snapshot now token-matches the query, or the
	// visible UID set changed at all (covers a single existing record
	// being re-rendered in place). Rows already visible before submit
	// never count as a match: consecutive searches for the same patient
	// would otherwise accept the previous render.
	studies, found, err := poll.Soft(ctx, func(ctx context.Context) ([]StudyRecord, bool) {
		snapshot, err := doc.Snapshot(ctx)
		if err != nil {
			return nil, false
		}
		current := studiesFromSnapshot(snapshot)
		if anyNewRowMatches(current, priorUIDs, query) {
			return current, true
		}
		if len(current) > 0 && !sameUIDSet(priorUIDs, studyUIDSet(current)) {
			return current, true
		}
		return nil, false
	}, opts.Interval, opts.ResultTimeout)
	if err != nil {
		return nil, err
	}
	if !found {
		slog.InfoContext(ctx, "no studies found", "query", query)
		return &SearchResult{}, nil
	}

	for i := range studies {
		expandRow(ctx, doc, &studies[i], opts)
	}

	if opts.DOB != "" {
		studies = filterByDOB(ctx, studies, opts.DOB, opts.StrictDOB)
	}

	return &SearchResult{
		Studies:      studies,
		PatientNames: distinctPatientNames(studies),
	}, nil
}

// expandRow activates one study row and waits for the series sub-table
// to reflect it. When the sub-table never visibly changes — the first
// row is often auto-selected, so activating it changes nothing — the
// table's current contents are accepted as this row's series.
func expandRow(ctx context.Context, doc dompage.Document, study *StudyRecord, opts SearchOptions) {
	ctx, span := tracer.Start(ctx, "expandRow")
	defer span.End()

	var prior map[string]bool
	if snapshot, err := doc.Snapshot(ctx); err == nil {
		prior = seriesUIDSet(seriesFromSnapshot(snapshot))
	}

	if err := doc.ActivateRow(ctx, study.UID); err != nil {
		slog.WarnContext(ctx, "failed to activate study row", "uid", study.UID, "err", err)
		return
	}

	series, changed, err := poll.Soft(ctx, func(ctx context.Context) ([]SeriesRecord, bool) {
		snapshot, err := doc.Snapshot(ctx)
		if err != nil {
			return nil, false
		}
		current := seriesFromSnapshot(snapshot)
		if !sameUIDSet(prior, seriesUIDSet(current)) {
			return current, true
		}
		return nil, false
	}, opts.Interval, opts.SeriesTimeout)
	if err != nil {
		return
	}
	if !changed {
		if snapshot, err := doc.Snapshot(ctx); err == nil {
			series = seriesFromSnapshot(snapshot)
		}
	}
	study.Series = series
}

func studiesFromSnapshot(doc *goquery.Document) []StudyRecord {
	table := tableparse.FindTable(doc, HeaderStudyUID)
	records := tableparse.ParseRows(table, HeaderStudyUID, []string{
		HeaderStudyDescription,
		HeaderStudyDate,
		HeaderModality,
		HeaderPatientName,
	})

	studies := make([]StudyRecord, len(records))
	for i, r := range records {
		studies[i] = StudyRecord{
			UID:         strings.TrimSpace(r[HeaderStudyUID]),
			Description: r[HeaderStudyDescription],
			Date:        tableparse.NormalizeDate(r[HeaderStudyDate]),
			Modality:    r[HeaderModality],
			PatientName: r[HeaderPatientName],
		}
	}
	return studies
}

func seriesFromSnapshot(doc *goquery.Document) []SeriesRecord {
	table := tableparse.FindTable(doc, HeaderSeriesUID)
	records := tableparse.ParseRows(table, HeaderSeriesUID, []string{
		HeaderSeriesDescription,
	})

	series := make([]SeriesRecord, len(records))
	for i, r := range records {
		series[i] = SeriesRecord{
			UID:         strings.TrimSpace(r[HeaderSeriesUID]),
			Description: r[HeaderSeriesDescription],
		}
	}
	return series
}

func studyUIDSet(studies []StudyRecord) map[string]bool {
	set := make(map[string]bool, len(studies))
	for _, s := range studies {
		set[s.UID] = true
	}
	return set
}

func seriesUIDSet(series []SeriesRecord) map[string]bool {
	set := make(map[string]bool, len(series))
	for _, s := range series {
		set[s.UID] = true
	}
	return set
}

func sameUIDSet(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for uid := range a {
		if !b[uid] {
			return false
		}
	}
	return true
}

var nameSeparators = regexp.MustCompile(`[,\s^]+`)

// anyNewRowMatches reports whether some row not present in the
// pre-submit snapshot has a patient-name cell containing every token of
// the query, case-insensitively.
func anyNewRowMatches(studies []StudyRecord, priorUIDs map[string]bool, query string) bool {
	tokens := nameSeparators.Split(strings.ToLower(query), -1)
	for _, study := range studies {
		if priorUIDs[study.UID] {
			continue
		}
		cell := strings.ToLower(study.PatientName)
		matched := true
		for _, token := range tokens {
			if token == "" {
				continue
			}
			if !strings.Contains(cell, token) {
				matched = false
				break
			}
		}
		if matched {
			return true
		}
	}
	return false
}

func distinctPatientNames(studies []StudyRecord) []string {
	seen := map[string]bool{}
	var names []string
	for _, s := range studies {
		if s.PatientName == "" || seen[s.PatientName] {
			continue
		}
		seen[s.PatientName] = true
		names = append(names, s.PatientName)
	}
	return names
}

var dobToken = regexp.MustCompile(`\d{4}-\d{2}-\d{2}|\d{1,2}/\d{1,2}/\d{4}|\b(19|20)\d{6}\b`)

// NormalizeDOB reduces a date of birth in any common textual form to
// YYYYMMDD, or "" when nothing date-like is present.
func NormalizeDOB(s string) string {
	match := dobToken.FindString(s)
	if match == "" {
		return ""
	}
	if strings.Contains(match, "/") {
		parts := strings.Split(match, "/")
		month, day := parts[0], parts[1]
		if len(month) == 1 {
			month = "0" + month
		}
		if len(day) == 1 {
			day = "0" + day
		}
		return parts[2] + month + day
	}
	return strings.ReplaceAll(match, "-", "")
}

func filterByDOB(ctx context.Context, studies []StudyRecord, dob string, strict bool) []StudyRecord {
	want := NormalizeDOB(dob)
	if want == "" {
		return studies
	}

	var kept []StudyRecord
	for _, s := range studies {
		if NormalizeDOB(s.PatientName) == want {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 && !strict {
		// The vendor renders DOBs inconsistently across skins; dropping
		// every study over a format mismatch loses real data.
		slog.WarnContext(ctx, "DOB filter matched nothing, keeping unfiltered set", "dob", want)
		return studies
	}
	return kept
}
