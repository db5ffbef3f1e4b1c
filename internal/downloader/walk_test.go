package downloader

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/tessiv/ereserve-dl/internal/ereserve"
	"github.com/tessiv/ereserve-dl/internal/pdf"
	"github.com/tessiv/ereserve-dl/internal/ui"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingAssembler struct {
	marks []string
	pages []string
}

func (r *recordingAssembler) MarkChapter(title string) {
	r.marks = append(r.marks, title)
}

func (r *recordingAssembler) AppendPage(path string, _, _ float64) error {
	r.pages = append(r.pages, filepath.Base(path))
	return nil
}

func TestWalkBookOneManifestCallPerChapter(t *testing.T) {
	img := jpegBytes(t, 100, 140)
	srv := imageServer(t, map[string][]byte{
		"a/001.jpg": img,
		"a/002.jpg": img,
		"c/001.jpg": img,
	})

	dl := New(srv.Client(), Options{
		ImageAPI: srv.URL + "/image",
		BaseDir:  t.TempDir(),
		DPI:      144,
	})

	chapters := []ereserve.Chapter{
		{ID: "c1", Name: "One"},
		{ID: "c2", Name: "Empty"},
		{ID: "c3", Name: "Three"},
	}
	manifests := map[string][]ereserve.PageRef{
		"c1": {{Key: "a/001.jpg"}, {Key: "a/002.jpg"}},
		"c2": {},
		"c3": {{Key: "c/001.jpg"}},
	}

	var calls []string
	var skipped []string
	asm := &recordingAssembler{}
	stats := &ui.Stats{}

	err := dl.WalkBook(context.Background(), chapters, WalkOptions{
		ViewerBookID: "book-1",
		Manifest: func(_ context.Context, chapterID, viewerBookID string) ([]ereserve.PageRef, error) {
			assert.Equal(t, "book-1", viewerBookID)
			calls = append(calls, chapterID)
			return manifests[chapterID], nil
		},
		Assembler: asm,
		OnSkip: func(ch ereserve.Chapter) {
			skipped = append(skipped, ch.DisplayName())
		},
		Stats: stats,
	})
	require.NoError(t, err)

	// One manifest call per chapter, in chapter order, skipped or not.
	assert.Equal(t, []string{"c1", "c2", "c3"}, calls)

	assert.Equal(t, []string{"One", "Three"}, asm.marks)
	assert.Equal(t, []string{"001.jpg", "002.jpg", "001.jpg"}, asm.pages)
	assert.Equal(t, []string{"Empty"}, skipped)

	assert.Equal(t, int64(2), stats.TotalChapters.Load())
	assert.Equal(t, int64(1), stats.SkippedChapters.Load())
	assert.Equal(t, int64(3), stats.TotalPages.Load())
	assert.Equal(t, int64(3*len(img)), stats.TotalBytes.Load())
	assert.Equal(t, 3, dl.Sequence())
}

func TestWalkBookManifestErrorAborts(t *testing.T) {
	srv := imageServer(t, nil)
	dl := New(srv.Client(), Options{
		ImageAPI: srv.URL + "/image",
		BaseDir:  t.TempDir(),
	})

	boom := errors.New("manifest unavailable")
	asm := &recordingAssembler{}

	err := dl.WalkBook(context.Background(),
		[]ereserve.Chapter{{ID: "c1"}, {ID: "c2"}},
		WalkOptions{
			Manifest: func(context.Context, string, string) ([]ereserve.PageRef, error) {
				return nil, boom
			},
			Assembler: asm,
		})

	assert.ErrorIs(t, err, boom)
	assert.Empty(t, asm.marks)
	assert.Empty(t, asm.pages)
}

func TestWalkBookAssemblesDocument(t *testing.T) {
	img := jpegBytes(t, 1000, 1400)
	srv := imageServer(t, map[string][]byte{
		"s/001.jpg": img,
		"s/002.jpg": img,
	})

	base := t.TempDir()
	dl := New(srv.Client(), Options{
		ImageAPI: srv.URL + "/image",
		BaseDir:  filepath.Join(base, "12345"),
		DPI:      144,
	})

	asm := pdf.NewAssembler("12345")

	err := dl.WalkBook(context.Background(),
		[]ereserve.Chapter{{ID: "e1", Name: "Ch1"}},
		WalkOptions{
			ViewerBookID: "v1",
			Manifest: func(context.Context, string, string) ([]ereserve.PageRef, error) {
				return []ereserve.PageRef{{Key: "s/001.jpg"}, {Key: "s/002.jpg"}}, nil
			},
			Assembler: asm,
		})
	require.NoError(t, err)

	require.Equal(t, 2, asm.PageCount())
	assert.Equal(t, []pdf.TocEntry{{Level: 1, Title: "Ch1", StartPage: 1}}, asm.TOC())

	out := filepath.Join(base, "12345.pdf")
	require.NoError(t, asm.WriteFile(out))

	n, err := api.PageCountFile(out)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
