package downloader

import (
	"context"

	"github.com/tessiv/ereserve-dl/internal/ereserve"
	"github.com/tessiv/ereserve-dl/internal/ui"
)

// BookAssembler receives the walked pages in acquisition order.
type BookAssembler interface {
	MarkChapter(title string)
	AppendPage(imgPath string, widthPt, heightPt float64) error
}

type WalkOptions struct {
	ViewerBookID string

	// Manifest fetches the ordered page refs for one chapter. Called
	// exactly once per chapter, in chapter order.
	Manifest func(ctx context.Context, chapterID, viewerBookID string) ([]ereserve.PageRef, error)

	Assembler BookAssembler

	// Register creates the per-chapter progress bar. Optional.
	Register func(prefix string) *ui.ProgressHandle

	// OnSkip observes chapters whose manifest came back empty. Optional.
	OnSkip func(ereserve.Chapter)

	// Stats, when set, accumulates the run counters.
	Stats *ui.Stats
}

// WalkBook drives the chapter walk: one manifest call per chapter, chapters
// without usable pages skipped, every acquired page handed to the assembler
// with the chapter marked ahead of its first page. Any error aborts the
// walk; skipped chapters do not.
func (d *Downloader) WalkBook(ctx context.Context, chapters []ereserve.Chapter, opts WalkOptions) error {
	for _, ch := range chapters {
		refs, err := opts.Manifest(ctx, ch.ID, opts.ViewerBookID)
		if err != nil {
			return err
		}

		if len(refs) == 0 {
			if opts.Stats != nil {
				opts.Stats.SkippedChapters.Add(1)
			}
			if opts.OnSkip != nil {
				opts.OnSkip(ch)
			}
			continue
		}

		var ph *ui.ProgressHandle
		if opts.Register != nil {
			ph = opts.Register(ch.DisplayName())
			ph.SetTotal(len(refs))
		}

		first := true
		bytes, err := d.AcquireChapter(ctx, ch, refs, ph, func(p AcquiredPage) error {
			if first {
				opts.Assembler.MarkChapter(ch.DisplayName())
				first = false
			}
			return opts.Assembler.AppendPage(p.Path, p.WidthPt, p.HeightPt)
		})
		if opts.Stats != nil {
			opts.Stats.TotalBytes.Add(bytes)
		}
		if err != nil {
			return err
		}

		if opts.Stats != nil {
			opts.Stats.TotalChapters.Add(1)
			opts.Stats.TotalPages.Add(int64(len(refs)))
		}
	}

	return nil
}
