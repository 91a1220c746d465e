package pdf

import (
	"bytes"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Validate parses a produced document with pdfcpu and returns its page
// count.
func Validate(data []byte) (int, error) {
	if len(data) < 4 || string(data[:4]) != "%PDF" {
		return 0, fmt.Errorf("pdf: missing %%PDF header")
	}
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	if _, err := api.ReadContext(bytes.NewReader(data), conf); err != nil {
		return 0, fmt.Errorf("pdf: read: %w", err)
	}
	pages, err := api.PageCount(bytes.NewReader(data), conf)
	if err != nil {
		return 0, fmt.Errorf("pdf: count pages: %w", err)
	}
	return pages, nil
}
