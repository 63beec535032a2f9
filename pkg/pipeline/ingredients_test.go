package pipeline

import (
	"reflect"
	"strings"
	"testing"
)

func TestExtractIngredientsStopsAtNutrition(t *testing.T) {
	text := "Ingredients: Water, Sugar, Salt. Nutrition Facts per 100g: energy 50kcal"
	got := ExtractIngredients(text)
	if strings.Contains(strings.ToLower(got), "nutrition") {
		t.Fatalf("section should stop before the nutrition block, got %q", got)
	}
	if !strings.HasPrefix(got, "Ingredients:") {
		t.Fatalf("section should start at the marker, got %q", got)
	}
	tokens := Tokenize(got)
	want := []string{"Water", "Sugar", "Salt"}
	if !reflect.DeepEqual(tokens, want) {
		t.Fatalf("tokens = %v, want %v", tokens, want)
	}
}

func TestExtractIngredientsMarkerPriority(t *testing.T) {
	text := "INGREDIENTS AS SERVED: oats, honey\nNutritional information follows"
	got := ExtractIngredients(text)
	if strings.Contains(strings.ToLower(got), "nutritional") {
		t.Fatalf("terminator not applied: %q", got)
	}
	tokens := Tokenize(got)
	want := []string{"oats", "honey"}
	if !reflect.DeepEqual(tokens, want) {
		t.Fatalf("tokens = %v, want %v", tokens, want)
	}
}

func TestExtractIngredientsDoubleNewlineTerminator(t *testing.T) {
	text := "Ingredients: rice; lentils\n\nBest before: see lid"
	got := ExtractIngredients(text)
	if strings.Contains(got, "Best before") {
		t.Fatalf("section should stop at the blank line, got %q", got)
	}
	tokens := Tokenize(got)
	want := []string{"rice", "lentils"}
	if !reflect.DeepEqual(tokens, want) {
		t.Fatalf("tokens = %v, want %v", tokens, want)
	}
}

func TestExtractIngredientsNoMarkerReturnsWholeText(t *testing.T) {
	text := "water, barley malt; hops\nyeast"
	if got := ExtractIngredients(text); got != text {
		t.Fatalf("no-marker text should pass through, got %q", got)
	}
	tokens := Tokenize(text)
	want := []string{"water", "barley malt", "hops", "yeast"}
	if !reflect.DeepEqual(tokens, want) {
		t.Fatalf("tokens = %v, want %v", tokens, want)
	}
}

func TestTokenizeDropsEmptyPieces(t *testing.T) {
	tokens := Tokenize("water,, ,salt;\n;sugar,")
	want := []string{"water", "salt", "sugar"}
	if !reflect.DeepEqual(tokens, want) {
		t.Fatalf("tokens = %v, want %v", tokens, want)
	}
}

func TestTokenizePreservesCase(t *testing.T) {
	tokens := Tokenize("Ingredients: Whole MILK Powder, Cocoa")
	want := []string{"Whole MILK Powder", "Cocoa"}
	if !reflect.DeepEqual(tokens, want) {
		t.Fatalf("tokens = %v, want %v", tokens, want)
	}
}
