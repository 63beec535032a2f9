package pipeline

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"testing"

	"github.com/disintegration/imaging"
)

// fakeRunner serves canned texts keyed by bitmap identity and mode.
type fakeRunner struct {
	texts map[*image.NRGBA]map[PageSegMode]string
	err   error
	calls int
}

func (f *fakeRunner) Recognize(img *image.NRGBA, mode PageSegMode) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	if byMode, ok := f.texts[img]; ok {
		return byMode[mode], nil
	}
	return "", nil
}

func testVariants(n int) []Variant {
	out := make([]Variant, n)
	for i := range out {
		out[i] = Variant{
			Name: fmt.Sprintf("v%d", i),
			Img:  imaging.New(8, 8, color.NRGBA{255, 255, 255, 255}),
		}
	}
	return out
}

func TestSelectBestPicksHighestScore(t *testing.T) {
	variants := testVariants(2)
	r := &fakeRunner{texts: map[*image.NRGBA]map[PageSegMode]string{
		variants[0].Img: {PSMSingleBlock: "a b", PSMAuto: "water sugar salt"},
		variants[1].Img: {PSMSingleBlock: "noise", PSMAuto: ""},
	}}
	best := SelectBest(r, variants, []PageSegMode{PSMSingleBlock, PSMAuto}, 0)
	if best.Variant != "v0" || best.Mode != PSMAuto {
		t.Fatalf("best = %s/%s, want v0/auto", best.Variant, best.Mode)
	}
	if best.Score != 3 {
		t.Fatalf("score = %d, want 3", best.Score)
	}
}

func TestSelectBestTieKeepsFirst(t *testing.T) {
	variants := testVariants(2)
	r := &fakeRunner{texts: map[*image.NRGBA]map[PageSegMode]string{
		variants[0].Img: {PSMSingleBlock: "one two"},
		variants[1].Img: {PSMSingleBlock: "uno dos"},
	}}
	best := SelectBest(r, variants, []PageSegMode{PSMSingleBlock}, 0)
	if best.Variant != "v0" {
		t.Fatalf("tie should keep the first result, got %s", best.Variant)
	}
}

func TestSelectBestNeverWorseThanDefaultAlone(t *testing.T) {
	variants := testVariants(3)
	r := &fakeRunner{texts: map[*image.NRGBA]map[PageSegMode]string{
		variants[0].Img: {PSMSingleBlock: "water sugar"},
	}}
	modes := []PageSegMode{PSMSingleBlock}
	alone := SelectBest(r, variants[:1], modes, 0)
	full := SelectBest(r, variants, modes, 0)
	if full.Score < alone.Score {
		t.Fatalf("best-of-N score %d below singleton score %d", full.Score, alone.Score)
	}
}

func TestSelectBestAbsorbsEngineErrors(t *testing.T) {
	variants := testVariants(2)
	r := &fakeRunner{err: errors.New("engine blew up")}
	best := SelectBest(r, variants, []PageSegMode{PSMSingleBlock, PSMAuto}, 0)
	if best.Text != "" || best.Score != 0 {
		t.Fatalf("failed engine should yield empty zero-score result, got %+v", best)
	}
	if r.calls != 4 {
		t.Fatalf("all combinations should still be attempted, got %d calls", r.calls)
	}
}

func TestSelectBestHonorsComboCap(t *testing.T) {
	variants := testVariants(4)
	r := &fakeRunner{texts: map[*image.NRGBA]map[PageSegMode]string{}}
	SelectBest(r, variants, []PageSegMode{PSMSingleBlock, PSMAuto, PSMSparseText}, 5)
	if r.calls != 5 {
		t.Fatalf("expected 5 engine calls under cap, got %d", r.calls)
	}
}

func TestScoreText(t *testing.T) {
	cases := []struct {
		text string
		want int
	}{
		{"", 0},
		{"a b c", 0},
		{"water sugar", 2},
		{"x water\n salt y", 2},
	}
	for _, c := range cases {
		if got := scoreText(c.text); got != c.want {
			t.Errorf("scoreText(%q) = %d, want %d", c.text, got, c.want)
		}
	}
}
