package main

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"nutriscan/pkg/pipeline"

	"github.com/gin-gonic/gin"
)

var jwtSecret []byte // loaded from env JWT_SECRET (fallback to dev default)

var (
	predictor *pipeline.Pipeline
	refTable  pipeline.TableStore
)

func main() {
	// Auto-load ./.env if present (no external dependency) before reading vars
	loadDotEnv()
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		secret = "dev-insecure-secret-change" // development fallback
	}
	jwtSecret = []byte(secret)

	// Support a lightweight migrate command: `./nutriscan_app migrate`
	// It runs AutoMigrate and seeding then exits. Useful for CI or manual DB setup.
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		initDB()
		fmt.Println("migration and seeding completed")
		return
	}

	initDB()
	predictor = pipeline.New(pipelineConfigFromEnv())
	loadReferenceTable()
	go watchReferenceTable(referenceTablePath())

	r := gin.Default()

	setupRoutes(r)

	addr := os.Getenv("ADDR")
	if addr == "" {
		addr = ":8081"
	}
	r.Run(addr)
}

// pipelineConfigFromEnv starts from the pipeline defaults and applies the few
// supported env overrides.
func pipelineConfigFromEnv() pipeline.Config {
	cfg := pipeline.DefaultConfig()
	if v := os.Getenv("OCR_LANGS"); v != "" {
		cfg.Languages = strings.Split(v, "+")
	}
	if v := os.Getenv("OCR_SIMPLE"); v == "1" || strings.EqualFold(v, "true") {
		cfg.Exhaustive = false
	}
	return cfg
}

// loadReferenceTable populates the shared table store. A missing or broken
// reference file is not fatal: the pipeline degrades to its built-in
// vocabularies.
func loadReferenceTable() {
	path := referenceTablePath()
	ref, err := pipeline.LoadReferenceCSV(path)
	if err != nil {
		log.Printf("reference table unavailable (%v); using built-in fallbacks", err)
		refTable.Swap(nil)
		return
	}
	log.Printf("reference table loaded: %s rows=%d impact=%v", filepath.Base(path), ref.Len(), ref.HasImpact())
	refTable.Swap(ref)
}

// loadDotEnv loads key=value pairs from a local .env file into the environment
// without overwriting variables that are already set. Lines starting with # are ignored.
func loadDotEnv() {
	path := ".env"
	if _, err := os.Stat(path); err != nil {
		return // no .env file
	}
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		// split on first '='
		if eq := strings.IndexByte(line, '='); eq > 0 {
			key := strings.TrimSpace(line[:eq])
			val := strings.TrimSpace(line[eq+1:])
			if _, exists := os.LookupEnv(key); !exists {
				_ = os.Setenv(key, val)
			}
		}
	}
}
