package pipeline

import (
	"bytes"
	"errors"
	"image"
	"reflect"
	"testing"

	"github.com/disintegration/imaging"
)

// staticRunner always recognizes the same text, regardless of bitmap or mode.
type staticRunner struct{ text string }

func (s *staticRunner) Recognize(_ *image.NRGBA, _ PageSegMode) (string, error) {
	return s.text, nil
}

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, labelImage(w, h), imaging.PNG); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func TestPredictEndToEnd(t *testing.T) {
	p := New(Config{
		Runner:     &staticRunner{text: "Ingredients: Water, Cane Sugar, Salt\nNutrition information"},
		Exhaustive: true,
	})
	res, err := p.Predict(encodePNG(t, 120, 80), nil)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	wantTokens := []string{"Water", "Cane Sugar", "Salt"}
	if !reflect.DeepEqual(res.Tokens, wantTokens) {
		t.Fatalf("tokens = %v, want %v", res.Tokens, wantTokens)
	}
	if res.HealthScore != 90 {
		t.Fatalf("health = %d, want 90", res.HealthScore)
	}
	if res.IngredientsText == "" || res.OCRText == "" {
		t.Fatalf("texts should be populated: %+v", res)
	}
}

func TestPredictDeterministic(t *testing.T) {
	p := New(Config{
		Runner:     &staticRunner{text: "ingredients: oats, honey"},
		Exhaustive: true,
	})
	data := encodePNG(t, 150, 100)
	a, err := p.Predict(data, nil)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	b, err := p.Predict(data, nil)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("repeated runs differ:\n%+v\n%+v", a, b)
	}
}

func TestPredictUndecodable(t *testing.T) {
	p := New(Config{Runner: &staticRunner{}})
	if _, err := p.Predict([]byte("not an image"), nil); !errors.Is(err, ErrDecode) {
		t.Fatalf("expected ErrDecode, got %v", err)
	}
}

func TestPredictEmptyOCRText(t *testing.T) {
	p := New(Config{Runner: &staticRunner{text: ""}})
	res, err := p.Predict(encodePNG(t, 100, 60), nil)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if len(res.Tokens) != 0 || res.HealthScore != 100 {
		t.Fatalf("empty OCR should yield no tokens and full score, got %+v", res)
	}
}

func TestPredictCapsTokens(t *testing.T) {
	text := "ingredients: "
	for i := 0; i < 250; i++ {
		text += "x" + string(rune('a'+i%26)) + ", "
	}
	p := New(Config{Runner: &staticRunner{text: text}})
	res, err := p.Predict(encodePNG(t, 100, 60), nil)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if len(res.Tokens) != 200 {
		t.Fatalf("tokens = %d, want capped at 200", len(res.Tokens))
	}
}
