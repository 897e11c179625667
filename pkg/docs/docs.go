// Package docs flattens submitted documents and rich text into plain text
// for signal extraction.
package docs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"
)

// ErrUnsupported is returned for attachment types we cannot read.
var ErrUnsupported = errors.New("unsupported document type")

// MaxTextRunes bounds how much attachment text feeds extraction.
const MaxTextRunes = 20000

// Text extracts plain text from an uploaded file, choosing the reader from
// its extension.
func Text(ctx context.Context, filename string, data []byte) (string, error) {
	var (
		text string
		err  error
	)
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		text, err = PDFText(ctx, data)
	case ".html", ".htm":
		text, err = htmlText(data)
	case ".txt", ".md":
		text = Normalize(string(data))
	default:
		return "", ErrUnsupported
	}
	if err != nil {
		return "", err
	}
	return Truncate(text, MaxTextRunes), nil
}

// HTMLText flattens an HTML fragment. Input that is not HTML comes back
// normalized.
func HTMLText(s string) string {
	if !strings.Contains(s, "<") {
		return Normalize(s)
	}
	text, err := htmlText([]byte(s))
	if err != nil {
		return Normalize(s)
	}
	return text
}

func htmlText(data []byte) (string, error) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	return Normalize(extractText(doc)), nil
}

// PDFText prefers pdftotext when installed and falls back to the Go reader.
func PDFText(ctx context.Context, data []byte) (string, error) {
	if text, err := pdfWithPdftotext(ctx, data); err == nil && text != "" {
		return text, nil
	}
	return pdfWithGoLib(data)
}

func pdfWithPdftotext(ctx context.Context, data []byte) (string, error) {
	if _, err := exec.LookPath("pdftotext"); err != nil {
		return "", fmt.Errorf("pdftotext not found: %w", err)
	}
	cmd := exec.CommandContext(ctx, "pdftotext", "-layout", "-enc", "UTF-8", "-", "-")
	cmd.Stdin = bytes.NewReader(data)
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("pdftotext failed: %w", err)
	}
	return Normalize(string(out)), nil
}

func pdfWithGoLib(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	var parts []string
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// skip unreadable pages
			continue
		}
		if text = Normalize(text); text != "" {
			parts = append(parts, text)
		}
	}
	if len(parts) == 0 {
		return "", errors.New("no text extracted from pdf")
	}
	return strings.Join(parts, " "), nil
}

// Normalize collapses whitespace and drops NULs and invalid UTF-8.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\x00", " ")
	text = strings.ToValidUTF8(text, "")
	return strings.Join(strings.Fields(text), " ")
}

// Truncate cuts text to at most max runes.
func Truncate(text string, max int) string {
	if max <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return strings.TrimSpace(string(runes[:max]))
}

func extractText(n *html.Node) string {
	var buf strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		switch node.Type {
		case html.TextNode:
			buf.WriteString(node.Data)
			buf.WriteString(" ")
		case html.ElementNode:
			if node.Data == "script" || node.Data == "style" {
				return
			}
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)
	return buf.String()
}
