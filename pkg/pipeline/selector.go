package pipeline

import (
	"log"
	"strings"
	"unicode/utf8"
)

// OcrResult is one (variant, mode) recognition outcome during best-of-N
// selection. Only the winner outlives the selection loop.
type OcrResult struct {
	Variant string
	Mode    PageSegMode
	Text    string
	Score   int
}

// scoreText counts whitespace-separated fields longer than one rune. Empty or
// garbage-heavy output scores low, which is what the selector needs: a cheap
// proxy for how much legible text a pass recovered.
func scoreText(text string) int {
	n := 0
	for _, f := range strings.Fields(text) {
		if utf8.RuneCountInString(f) > 1 {
			n++
		}
	}
	return n
}

// SelectBest runs the Runner over every (variant, mode) combination, scores
// each text and keeps the single best result. Iteration order is variants
// then modes and ties keep the first result seen, so selection is
// deterministic for a fixed variant set. Engine failures score zero and never
// abort the remaining combinations. maxCombos caps total engine invocations;
// <=0 means no cap.
func SelectBest(r Runner, variants []Variant, modes []PageSegMode, maxCombos int) OcrResult {
	best := OcrResult{}
	first := true
	tried := 0
	for _, v := range variants {
		for _, mode := range modes {
			if maxCombos > 0 && tried >= maxCombos {
				return best
			}
			tried++
			text, err := r.Recognize(v.Img, mode)
			if err != nil {
				log.Printf("ocr %s/%s failed: %v", v.Name, mode, err)
				text = ""
			}
			res := OcrResult{Variant: v.Name, Mode: mode, Text: text, Score: scoreText(text)}
			if first || res.Score > best.Score {
				best = res
				first = false
			}
		}
	}
	return best
}
