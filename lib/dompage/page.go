// Package dompage models the browser page hosting the target imaging
// application as a small capability surface: snapshot the rendered DOM,
// fill inputs, press controls, and activate table rows.
//
// The orchestration code only ever sees these interfaces, so it can be
// exercised against synthetic fixtures; the live implementation speaks
// to an in-page agent over local HTTP (see Agent).
package dompage

import (
	"context"

	"github.com/PuerkitoBio/goquery"
)

// Document is one document in the frame tree of the hosting page,
// upgraded with interaction primitives.
type Document interface {
	// Snapshot returns the document's current rendered DOM. It fails for
	// cross-origin frames, which cannot be inspected.
	Snapshot(ctx context.Context) (*goquery.Document, error)

	// SetInput sets the value of the input identified by its name
	// attribute.
	SetInput(ctx context.Context, name, value string) error

	// SelectOption switches the select control identified by name to the
	// option with the given value.
	SelectOption(ctx context.Context, name, value string) error

	// ClickButton presses the control whose visible label matches
	// exactly.
	ClickButton(ctx context.Context, label string) error

	// ActivateRow synthesizes the full pointer press-and-release sequence
	// on the table row carrying the given identifier text. A plain click
	// is not enough: the target UI binds interaction handlers through
	// event delegation and only reacts to the complete sequence.
	ActivateRow(ctx context.Context, uid string) error
}

// Page is the browser tab hosting the target application.
type Page interface {
	// Frames returns every document of the page in document order,
	// starting with the top document. Cross-origin frames are included;
	// inspecting them fails.
	Frames(ctx context.Context) ([]Document, error)
}
