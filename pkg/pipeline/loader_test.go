package pipeline

import (
	"bytes"
	"errors"
	"image/color"
	"testing"

	"github.com/disintegration/imaging"
	"golang.org/x/image/bmp"
)

func TestDecodePNG(t *testing.T) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, labelImage(60, 40), imaging.PNG); err != nil {
		t.Fatalf("encode: %v", err)
	}
	img, err := Decode(buf.Bytes())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if img.Bounds().Dx() != 60 || img.Bounds().Dy() != 40 {
		t.Fatalf("unexpected bounds %v", img.Bounds())
	}
}

func TestDecodeJPEG(t *testing.T) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, labelImage(60, 40), imaging.JPEG); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := Decode(buf.Bytes()); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func TestDecodeBMPFallback(t *testing.T) {
	var buf bytes.Buffer
	if err := bmp.Encode(&buf, imaging.New(30, 20, color.NRGBA{128, 128, 128, 255})); err != nil {
		t.Fatalf("encode: %v", err)
	}
	img, err := Decode(buf.Bytes())
	if err != nil {
		t.Fatalf("bmp decode: %v", err)
	}
	if img.Bounds().Dx() != 30 {
		t.Fatalf("unexpected bounds %v", img.Bounds())
	}
}

func TestDecodeGarbage(t *testing.T) {
	_, err := Decode([]byte("definitely not an image"))
	if !errors.Is(err, ErrDecode) {
		t.Fatalf("expected ErrDecode, got %v", err)
	}
}

func TestDecodeEmpty(t *testing.T) {
	if _, err := Decode(nil); !errors.Is(err, ErrDecode) {
		t.Fatalf("expected ErrDecode, got %v", err)
	}
}
