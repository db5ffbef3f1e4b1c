package downloader

import (
	"context"
	"errors"
	"fmt"
	"image"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tessiv/ereserve-dl/internal/ereserve"
	"github.com/tessiv/ereserve-dl/internal/ui"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

// ErrDownloadFailed is returned on a non-2xx image fetch. Downloads are
// never retried: a failing image under a bridged session usually means the
// session went stale, which a retry cannot fix.
var ErrDownloadFailed = errors.New("download failed")

const fetchTimeout = 30 * time.Second

// AcquiredPage is one page image persisted locally, sized for the output
// document. Sequence is assigned in discovery order and increases by
// exactly 1 across the whole book.
type AcquiredPage struct {
	Chapter  ereserve.Chapter
	Sequence int
	Path     string

	PixelWidth  int
	PixelHeight int
	WidthPt     float64
	HeightPt    float64
}

type Downloader struct {
	client   *http.Client
	imageAPI string
	referer  string
	baseDir  string
	dpi      float64

	seq int

	log interface{ Debugf(string, ...any) }
}

type Options struct {
	ImageAPI string
	Referer  string
	BaseDir  string
	DPI      float64
	Log      interface{ Debugf(string, ...any) }
}

func New(client *http.Client, opts Options) *Downloader {
	if opts.DPI <= 0 {
		opts.DPI = 144
	}
	return &Downloader{
		client:   client,
		imageAPI: opts.ImageAPI,
		referer:  opts.Referer,
		baseDir:  opts.BaseDir,
		dpi:      opts.DPI,
		log:      opts.Log,
	}
}

// AcquireChapter fetches every page of one chapter, in manifest order, one
// at a time, and hands each acquired page to emit. Returns the bytes
// downloaded. Any failure aborts the run.
func (d *Downloader) AcquireChapter(
	ctx context.Context,
	ch ereserve.Chapter,
	refs []ereserve.PageRef,
	ph *ui.ProgressHandle,
	emit func(AcquiredPage) error,
) (int64, error) {

	folder := filepath.Join(d.baseDir, ch.DirName())
	if err := os.MkdirAll(folder, 0755); err != nil {
		return 0, err
	}

	total := len(refs)
	var doneBytes int64

	if ph != nil {
		ph.Update(0, total, 0)
	}

	for i, ref := range refs {
		dest := filepath.Join(folder, fileNameFor(ref.Key))

		chapterDone := doneBytes
		progress := func(done int64) {
			if ph != nil {
				ph.Update(i, total, chapterDone+done)
			}
		}

		written, err := d.fetch(ctx, ref.Key, dest, progress)
		if err != nil {
			return doneBytes, fmt.Errorf("page %d of %s: %w", i+1, ch.DisplayName(), err)
		}
		doneBytes += written

		w, h, err := imageSize(dest)
		if err != nil {
			return doneBytes, fmt.Errorf("page %d of %s: %w", i+1, ch.DisplayName(), err)
		}

		d.seq++
		page := AcquiredPage{
			Chapter:     ch,
			Sequence:    d.seq,
			Path:        dest,
			PixelWidth:  w,
			PixelHeight: h,
			WidthPt:     PointsFromPixels(w, d.dpi),
			HeightPt:    PointsFromPixels(h, d.dpi),
		}

		if err := emit(page); err != nil {
			return doneBytes, err
		}

		if ph != nil {
			ph.Update(i+1, total, doneBytes)
		}
	}

	if ph != nil {
		ph.MarkDone()
	}

	return doneBytes, nil
}

// Sequence returns the number of pages acquired so far.
func (d *Downloader) Sequence() int {
	return d.seq
}

func (d *Downloader) fetch(ctx context.Context, key, dest string, progress func(int64)) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	u := d.imageAPI + "?" + url.Values{"filePath": {key}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, err
	}

	req.Header.Set("Referer", d.referer)
	req.Header.Set("Accept", "image/avif,image/webp,image/apng,image/*,*/*;q=0.8")

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			d.debugf("Warning: failed to close response body for %s: %v\n", u, cerr)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("%w: HTTP %d for %s", ErrDownloadFailed, resp.StatusCode, key)
	}

	f, err := os.Create(dest)
	if err != nil {
		return 0, err
	}

	written, err := copyWithProgress(f, resp.Body, progress)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return written, err
	}

	return written, nil
}

// fileNameFor derives the local filename from the storage key's trailing
// path segment.
func fileNameFor(key string) string {
	name := key[strings.LastIndex(key, "/")+1:]
	if name == "" {
		name = "page.jpg"
	}
	return name
}

func imageSize(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, fmt.Errorf("decode image %s: %w", filepath.Base(path), err)
	}

	return cfg.Width, cfg.Height, nil
}

// PointsFromPixels converts a pixel extent to document points at the fixed
// export DPI. The source image's embedded resolution metadata is ignored so
// page geometry stays uniform across heterogeneous scans.
func PointsFromPixels(px int, dpi float64) float64 {
	return float64(px) * 72.0 / dpi
}

func (d *Downloader) debugf(format string, args ...any) {
	if d.log != nil {
		d.log.Debugf(format, args...)
	}
}
