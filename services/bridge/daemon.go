package bridge

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"pacs-preloader/lib/scrapers/pacs"

	"github.com/antzucaro/matchr"
)

// Patient keys round-trip through the storage service's filename
// sanitizer, so matching them back against live search results has to
// tolerate dropped punctuation and reordered case.
const refreshNameSimilarity = 0.85

// How recently a patient must have been preloaded for a refresh request
// to be considered already served.
const refreshFreshness = time.Hour

// RunRefreshDaemon polls the storage service for queued refresh
// requests and re-runs the full search → filter → preload pipeline for
// each, clearing the request once served. One patient's failure never
// blocks the next; the loop runs until ctx is cancelled.
func (s *Service) RunRefreshDaemon(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pending, err := s.store.PendingRefreshes(ctx)
			if err != nil {
				slog.WarnContext(ctx, "failed to list pending refreshes", "err", err)
				continue
			}
			for key := range pending {
				if err := s.serveRefresh(ctx, key); err != nil {
					slog.WarnContext(ctx, "refresh failed", "patient", key, "err", err)
				}
			}
		}
	}
}

func (s *Service) serveRefresh(ctx context.Context, patientKey string) error {
	ctx, span := tracer.Start(ctx, "serveRefresh")
	defer span.End()

	fresh, err := s.journal.RefreshedSince(ctx, patientKey, time.Now().Add(-refreshFreshness))
	if err == nil && fresh {
		slog.InfoContext(ctx, "refresh already served recently", "patient", patientKey)
		return s.store.ClearRefresh(ctx, patientKey)
	}

	name := keyToName(patientKey)
	result, err := s.runSearch(ctx, name, "", s.filters)
	if err != nil {
		return err
	}

	matched := matchRefreshStudies(result, name)
	if len(matched) == 0 {
		slog.InfoContext(ctx, "refresh found no studies", "patient", patientKey)
		return s.store.ClearRefresh(ctx, patientKey)
	}

	if !s.beginPreload() {
		// Leave the request queued; the next tick retries after the
		// interactive preload finishes.
		return ErrPreloadInFlight
	}
	defer s.endPreload()

	for _, study := range matched {
		_, err := s.runPreload(ctx, pacs.PreloadRequest{
			StudyUID:         study.UID,
			StudyDescription: study.Description,
			StudyDate:        study.Date,
			Series:           study.Series,
			PatientName:      study.PatientName,
		})
		if err != nil {
			slog.WarnContext(ctx, "refresh preload failed",
				"patient", patientKey, "study", study.UID, "err", err)
		}
	}

	return s.store.ClearRefresh(ctx, patientKey)
}

// matchRefreshStudies keeps the studies whose patient display name is
// close enough to the name recovered from the storage key.
func matchRefreshStudies(result *pacs.SearchResult, name string) []pacs.StudyRecord {
	var matched []pacs.StudyRecord
	for _, study := range result.Studies {
		similarity := matchr.JaroWinkler(
			strings.ToLower(study.PatientName),
			strings.ToLower(name),
			true,
		)
		if similarity >= refreshNameSimilarity {
			matched = append(matched, study)
		}
	}
	return matched
}
