package downloader

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/tessiv/ereserve-dl/internal/ereserve"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()

	var buf bytes.Buffer
	img := image.NewGray(image.Rect(0, 0, w, h))
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func imageServer(t *testing.T, pages map[string][]byte) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Query().Get("filePath")
		body, ok := pages[key]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAcquireChapter(t *testing.T) {
	img := jpegBytes(t, 1000, 1400)
	srv := imageServer(t, map[string][]byte{
		"scan/42/001.jpg": img,
		"scan/42/002.jpg": img,
	})

	dir := t.TempDir()
	dl := New(srv.Client(), Options{
		ImageAPI: srv.URL + "/image",
		Referer:  "https://host/reader/book/42",
		BaseDir:  dir,
		DPI:      144,
	})

	ch := ereserve.Chapter{ID: "c1", Name: "第一章"}
	refs := []ereserve.PageRef{
		{Key: "scan/42/001.jpg"},
		{Key: "scan/42/002.jpg"},
	}

	var emitted []AcquiredPage
	total, err := dl.AcquireChapter(context.Background(), ch, refs, nil, func(p AcquiredPage) error {
		emitted = append(emitted, p)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, int64(2*len(img)), total)
	require.Len(t, emitted, 2)

	assert.Equal(t, 1, emitted[0].Sequence)
	assert.Equal(t, 2, emitted[1].Sequence)
	assert.Equal(t, filepath.Join(dir, "第一章", "001.jpg"), emitted[0].Path)
	assert.Equal(t, filepath.Join(dir, "第一章", "002.jpg"), emitted[1].Path)

	assert.Equal(t, 1000, emitted[0].PixelWidth)
	assert.Equal(t, 1400, emitted[0].PixelHeight)
	assert.InDelta(t, 500.0, emitted[0].WidthPt, 0.01)
	assert.InDelta(t, 700.0, emitted[0].HeightPt, 0.01)

	assert.Equal(t, 2, dl.Sequence())
}

func TestAcquireChapterSequenceSpansChapters(t *testing.T) {
	img := jpegBytes(t, 100, 100)
	srv := imageServer(t, map[string][]byte{"p.jpg": img})

	dl := New(srv.Client(), Options{
		ImageAPI: srv.URL + "/image",
		BaseDir:  t.TempDir(),
	})

	refs := []ereserve.PageRef{{Key: "p.jpg"}}
	emit := func(AcquiredPage) error { return nil }

	_, err := dl.AcquireChapter(context.Background(), ereserve.Chapter{ID: "c1"}, refs, nil, emit)
	require.NoError(t, err)
	_, err = dl.AcquireChapter(context.Background(), ereserve.Chapter{ID: "c2"}, refs, nil, emit)
	require.NoError(t, err)

	assert.Equal(t, 2, dl.Sequence())
}

func TestAcquireChapterHTTPError(t *testing.T) {
	srv := imageServer(t, nil)

	dl := New(srv.Client(), Options{
		ImageAPI: srv.URL + "/image",
		BaseDir:  t.TempDir(),
	})

	refs := []ereserve.PageRef{{Key: "missing.jpg"}}
	_, err := dl.AcquireChapter(context.Background(), ereserve.Chapter{ID: "c1"}, refs, nil,
		func(AcquiredPage) error { return nil })

	assert.ErrorIs(t, err, ErrDownloadFailed)
}

func TestFileNameFor(t *testing.T) {
	assert.Equal(t, "003.jpg", fileNameFor("scan/42/003.jpg"))
	assert.Equal(t, "flat.png", fileNameFor("flat.png"))
	assert.Equal(t, "page.jpg", fileNameFor("scan/42/"))
}

func TestPointsFromPixels(t *testing.T) {
	assert.InDelta(t, 500.0, PointsFromPixels(1000, 144), 0.001)
	assert.InDelta(t, 700.0, PointsFromPixels(1400, 144), 0.001)
	assert.InDelta(t, 72.0, PointsFromPixels(72, 72), 0.001)
}
