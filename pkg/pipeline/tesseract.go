package pipeline

import (
	"bytes"
	"fmt"
	"image"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"
)

// PageSegMode is the page-segmentation hint passed to the recognition engine.
// Values match the Tesseract PSM numbering.
type PageSegMode int

const (
	PSMAuto        PageSegMode = 3  // automatic layout analysis
	PSMSingleBlock PageSegMode = 6  // assume a single uniform block of text
	PSMSparseText  PageSegMode = 11 // find sparse text in no particular order
)

func (m PageSegMode) String() string {
	switch m {
	case PSMAuto:
		return "auto"
	case PSMSingleBlock:
		return "single-block"
	case PSMSparseText:
		return "sparse"
	}
	return fmt.Sprintf("psm-%d", int(m))
}

// Runner recognizes text on a preprocessed bitmap under one segmentation mode.
// Implementations must treat engine failures as recoverable: the caller
// absorbs the error and keeps trying other variants.
type Runner interface {
	Recognize(img *image.NRGBA, mode PageSegMode) (string, error)
}

// TesseractRunner runs gosseract over an in-memory PNG encoding of the bitmap.
// A fresh client per call keeps invocations independent; Tesseract clients are
// not safe for concurrent reuse.
type TesseractRunner struct {
	Languages []string
}

func (t *TesseractRunner) Recognize(img *image.NRGBA, mode PageSegMode) (string, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return "", fmt.Errorf("encode for ocr: %w", err)
	}
	client := gosseract.NewClient()
	defer client.Close()
	langs := t.Languages
	if len(langs) == 0 {
		langs = []string{"eng"}
	}
	if err := client.SetLanguage(langs...); err != nil {
		return "", fmt.Errorf("set language %s: %w", strings.Join(langs, "+"), err)
	}
	if err := client.SetPageSegMode(gosseract.PageSegMode(mode)); err != nil {
		return "", fmt.Errorf("set psm %s: %w", mode, err)
	}
	if err := client.SetImageFromBytes(buf.Bytes()); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}
	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("tesseract: %w", err)
	}
	return text, nil
}
