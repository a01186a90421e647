package services

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// pdfExtension is the only extension eligible for analysis, matched case-insensitively.
const pdfExtension = ".pdf"

// IsEligible reports whether a blob name is a PDF that should be analyzed.
func IsEligible(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), pdfExtension)
}

// pdfPageCount parses content in relaxed validation mode and returns its page count.
func pdfPageCount(content []byte) (int, error) {
	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	n, err := api.PageCount(bytes.NewReader(content), cfg)
	if err != nil {
		return 0, fmt.Errorf("invalid PDF: %w", err)
	}
	return n, nil
}
