package dompage

import (
	"context"
	"fmt"
	"log/slog"

	"pacs-preloader/lib/htmlutil"
)

// Locate returns the document that actually hosts the target application.
//
// The application may sit inside one or more nested frames, some of them
// cross-origin and inaccessible; inaccessible frames are skipped, never
// an error. The hosting document is the one containing the identifying
// search input. When no frame carries it, the first frame with more than
// two inputs is used as a degraded heuristic, and the top document is the
// final fallback — callers must treat that as a soft failure rather than
// assume the application is present.
func Locate(ctx context.Context, page Page, inputName string) (Document, error) {
	frames, err := page.Frames(ctx)
	if err != nil {
		return nil, fmt.Errorf("list frames: %w", err)
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("page has no documents")
	}

	var fallback Document
	for i, frame := range frames {
		doc, err := frame.Snapshot(ctx)
		if err != nil {
			slog.DebugContext(ctx, "skipping inaccessible frame", "index", i, "err", err)
			continue
		}
		if doc.Find(fmt.Sprintf("input[name=%q]", inputName)).Length() > 0 {
			return frame, nil
		}
		if fallback == nil && htmlutil.CountInputs(doc) > 2 {
			fallback = frame
		}
	}

	if fallback != nil {
		slog.WarnContext(ctx, "search input not found, using input-heavy frame heuristic")
		return fallback, nil
	}
	slog.WarnContext(ctx, "no frame qualified, falling back to top document")
	return frames[0], nil
}
