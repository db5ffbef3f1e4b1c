// Package pdf assembles acquired page images into the output document:
// one image per page, pages sized in points, a level-1 bookmark per
// chapter. The document lives in memory until the final write; a fatal
// failure mid-run abandons it.
package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// TocEntry is one table-of-contents row. StartPage is 1-based and always
// references a page that has already been placed.
type TocEntry struct {
	Level     int
	Title     string
	StartPage int
}

type Assembler struct {
	title string
	conf  *model.Configuration

	buf   []byte
	pages int

	toc        []TocEntry
	pending    string
	hasPending bool
}

func NewAssembler(title string) *Assembler {
	return &Assembler{
		title: title,
		conf:  model.NewDefaultConfiguration(),
	}
}

// MarkChapter arms a TOC entry for the next placed page. A chapter that
// never places a page never reaches the TOC.
func (a *Assembler) MarkChapter(title string) {
	a.pending = title
	a.hasPending = true
}

// AppendPage adds one page sized widthPt x heightPt and fills it with the
// image. The page dimensions derive from the image's own pixel ratio, so
// pos:full preserves aspect.
func (a *Assembler) AppendPage(imgPath string, widthPt, heightPt float64) error {
	f, err := os.Open(imgPath)
	if err != nil {
		return err
	}
	defer f.Close()

	imp, err := api.Import(fmt.Sprintf("dim:%.2f %.2f, pos:full", widthPt, heightPt), types.POINTS)
	if err != nil {
		return fmt.Errorf("pdf: import config: %w", err)
	}

	var rs io.ReadSeeker
	if a.pages > 0 {
		rs = bytes.NewReader(a.buf)
	}

	var out bytes.Buffer
	if err := api.ImportImages(rs, &out, []io.Reader{f}, imp, a.conf); err != nil {
		return fmt.Errorf("pdf: import %s: %w", filepath.Base(imgPath), err)
	}

	a.buf = out.Bytes()
	a.pages++

	if a.hasPending {
		a.toc = append(a.toc, TocEntry{Level: 1, Title: a.pending, StartPage: a.pages})
		a.pending = ""
		a.hasPending = false
	}

	return nil
}

func (a *Assembler) PageCount() int {
	return a.pages
}

func (a *Assembler) TOC() []TocEntry {
	return a.toc
}

// WriteFile attaches the TOC as bookmarks, sets the title property, and
// serializes the document once.
func (a *Assembler) WriteFile(path string) error {
	if a.pages == 0 {
		return errors.New("pdf: no pages to write")
	}

	data := a.buf

	if len(a.toc) > 0 {
		bms := make([]pdfcpu.Bookmark, 0, len(a.toc))
		for _, e := range a.toc {
			bms = append(bms, pdfcpu.Bookmark{
				Title:    e.Title,
				PageFrom: e.StartPage,
			})
		}

		var out bytes.Buffer
		if err := api.AddBookmarks(bytes.NewReader(data), &out, bms, true, a.conf); err != nil {
			return fmt.Errorf("pdf: bookmarks: %w", err)
		}
		data = out.Bytes()
	}

	if a.title != "" {
		var out bytes.Buffer
		if err := api.AddProperties(bytes.NewReader(data), &out, map[string]string{"Title": a.title}, a.conf); err != nil {
			return fmt.Errorf("pdf: title property: %w", err)
		}
		data = out.Bytes()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
