package source

import (
	"fmt"
	"io"
	"iter"
	"os"
	"sort"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/jo-hoe/sagextract/internal/common"
	"github.com/jo-hoe/sagextract/internal/encode"
)

func init() {
	// Keep pdfcpu from creating its config directory under the user's home.
	api.DisableConfigDir()
}

var pdfImageMimes = map[string]string{
	"jpg":  common.MimeImageJPEG,
	"jpeg": common.MimeImageJPEG,
	"png":  common.MimeImagePNG,
	"tif":  "image/tiff",
	"tiff": "image/tiff",
	"jp2":  "image/jp2",
}

type pdfDocument struct {
	path     string
	ctx      *model.Context
	consumed bool
}

func openPDF(path string) (*pdfDocument, error) {
	f, err := os.Open(path) // #nosec G304 - caller supplies the input path
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer func() { _ = f.Close() }()

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	ctx, err := readPDF(f, conf)
	if err != nil {
		return nil, fmt.Errorf("read pdf %s: %w", path, err)
	}
	return &pdfDocument{path: path, ctx: ctx}, nil
}

// readPDF guards against parser panics on malformed input.
func readPDF(rs io.ReadSeeker, conf *model.Configuration) (ctx *model.Context, err error) {
	defer func() {
		if r := recover(); r != nil {
			ctx, err = nil, fmt.Errorf("panic while parsing: %v", r)
		}
	}()
	return api.ReadValidateAndOptimize(rs, conf)
}

func (d *pdfDocument) Kind() Kind   { return KindPDF }
func (d *pdfDocument) Path() string { return d.path }
func (d *pdfDocument) Close() error { return nil }

// Items extracts one page at a time. A page that cannot be extracted yields a
// single error item for that page and enumeration continues with the next page.
func (d *pdfDocument) Items() iter.Seq2[Item, error] {
	return func(yield func(Item, error) bool) {
		if d.consumed {
			return
		}
		d.consumed = true
		for page := 1; page <= d.ctx.PageCount; page++ {
			images, err := d.pageImages(page)
			if err != nil {
				if !yield(Item{Path: d.path, Page: page}, fmt.Errorf("extract images from page %d: %w", page, err)) {
					return
				}
				continue
			}
			for i, img := range images {
				item := Item{Path: d.path, Page: page, Index: i + 1}
				data, err := io.ReadAll(img)
				if err != nil {
					if !yield(item, fmt.Errorf("read image %s: %w", img.Name, err)) {
						return
					}
					continue
				}
				item.Data = data
				item.MIME = pdfImageMime(img.FileType, data)
				if !yield(item, nil) {
					return
				}
			}
		}
	}
}

// pageImages returns the page's images ordered by object number.
func (d *pdfDocument) pageImages(page int) (imgs []model.Image, err error) {
	defer func() {
		if r := recover(); r != nil {
			imgs, err = nil, fmt.Errorf("panic while extracting: %v", r)
		}
	}()
	byObj, err := pdfcpu.ExtractPageImages(d.ctx, page, false)
	if err != nil {
		return nil, err
	}
	objNrs := make([]int, 0, len(byObj))
	for nr := range byObj {
		objNrs = append(objNrs, nr)
	}
	sort.Ints(objNrs)
	imgs = make([]model.Image, 0, len(objNrs))
	for _, nr := range objNrs {
		imgs = append(imgs, byObj[nr])
	}
	return imgs, nil
}

func pdfImageMime(fileType string, data []byte) string {
	if mt, ok := pdfImageMimes[strings.ToLower(fileType)]; ok {
		return mt
	}
	return encode.DetectMIME(data)
}
