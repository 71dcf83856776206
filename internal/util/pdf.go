package util

import (
	"fmt"
	"strings"

	"github.com/gen2brain/go-fitz"
)

// ExtractPDFText 提取 PDF 前 maxPages 页文本，maxPages <= 0 表示全部
func ExtractPDFText(path string, maxPages int) (string, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer doc.Close()

	pages := doc.NumPage()
	if maxPages > 0 && pages > maxPages {
		pages = maxPages
	}

	var sb strings.Builder
	for n := 0; n < pages; n++ {
		text, err := doc.Text(n)
		if err != nil {
			return "", fmt.Errorf("extract page %d: %w", n, err)
		}
		sb.WriteString(strings.TrimSpace(text))
		sb.WriteString("\n")
	}

	return strings.TrimSpace(sb.String()), nil
}
