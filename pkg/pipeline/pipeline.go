package pipeline

import (
	"fmt"
	"log"
)

// maxTokens bounds the token list exposed in a Result.
const maxTokens = 200

// Config carries all pipeline tuning; there are no package-level knobs.
type Config struct {
	// Languages passed to the recognition engine (default eng).
	Languages []string
	// Modes are the page-segmentation hints tried per variant.
	Modes []PageSegMode
	// UpscaleBelow: captures whose larger dimension is below this are
	// upscaled 2x before preprocessing. <=0 disables.
	UpscaleBelow int
	// Exhaustive enables the full variant set; off means only the default
	// denoise+adaptive pipeline runs.
	Exhaustive bool
	// MaxCombos caps total (variant, mode) engine invocations; <=0 no cap.
	MaxCombos int
	// Runner overrides the recognition engine, mainly for tests. Nil means
	// Tesseract.
	Runner Runner
}

// DefaultConfig returns the production configuration.
func DefaultConfig() Config {
	return Config{
		Languages:    []string{"eng"},
		Modes:        []PageSegMode{PSMSingleBlock, PSMAuto, PSMSparseText},
		UpscaleBelow: 1000,
		Exhaustive:   true,
		MaxCombos:    18,
	}
}

// Result is the terminal output of one prediction. Constructed once, returned
// to the caller, never mutated.
type Result struct {
	OCRText         string   `json:"ocr_text"`
	IngredientsText string   `json:"ingredients_text"`
	Tokens          []string `json:"tokens"`
	Allergens       []string `json:"allergens"`
	HealthScore     int      `json:"health_score"`
	// Variant and Mode identify the winning preprocessing combination,
	// useful in logs and batch reports.
	Variant string `json:"-"`
	Mode    string `json:"-"`
}

// Pipeline is the image-to-structured-data chain: decode, preprocess,
// best-of-N OCR, ingredient extraction, allergen scoring. Stateless across
// requests; safe for concurrent use.
type Pipeline struct {
	cfg    Config
	runner Runner
}

// New builds a Pipeline from cfg, filling unset fields from DefaultConfig.
func New(cfg Config) *Pipeline {
	def := DefaultConfig()
	if len(cfg.Languages) == 0 {
		cfg.Languages = def.Languages
	}
	if len(cfg.Modes) == 0 {
		cfg.Modes = def.Modes
	}
	runner := cfg.Runner
	if runner == nil {
		runner = &TesseractRunner{Languages: cfg.Languages}
	}
	return &Pipeline{cfg: cfg, runner: runner}
}

// Predict runs the full pipeline over raw image bytes. ref may be nil, in
// which case the built-in vocabularies classify the tokens. The only fatal
// condition is an undecodable image (ErrDecode); OCR misses degrade to an
// empty-text result rather than an error.
func (p *Pipeline) Predict(data []byte, ref *ReferenceTable) (Result, error) {
	src, err := Decode(data)
	if err != nil {
		return Result{}, err
	}

	gray := PrepareGray(src, p.cfg.UpscaleBelow)
	variants := Variants(gray, p.cfg.Exhaustive)
	best := SelectBest(p.runner, variants, p.cfg.Modes, p.cfg.MaxCombos)
	log.Printf("ocr best variant=%s mode=%s score=%d text=%q",
		best.Variant, best.Mode, best.Score, snippet(best.Text, 120))

	section := ExtractIngredients(best.Text)
	tokens := Tokenize(section)
	allergens, health := ScoreTokens(tokens, ref)

	exposed := tokens
	if len(exposed) > maxTokens {
		exposed = exposed[:maxTokens]
	}
	if exposed == nil {
		exposed = []string{}
	}
	return Result{
		OCRText:         best.Text,
		IngredientsText: section,
		Tokens:          exposed,
		Allergens:       allergens,
		HealthScore:     health,
		Variant:         best.Variant,
		Mode:            best.Mode.String(),
	}, nil
}

// Summary is a short log-friendly description of a result.
func (r Result) Summary() string {
	return fmt.Sprintf("tokens=%d allergens=%d health=%d variant=%s/%s",
		len(r.Tokens), len(r.Allergens), r.HealthScore, r.Variant, r.Mode)
}
