package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"nutriscan/pkg/pipeline"

	_ "github.com/lib/pq"
)

// Re-runs the prediction pipeline over scans that previously failed (or, with
// -all-empty, scans whose OCR produced nothing), updating rows in place.
func main() {
	profile := flag.String("profile", "", "limit to one username's scans (empty = all)")
	limit := flag.Int("limit", 100, "max scans to retry")
	allEmpty := flag.Bool("all-empty", false, "also retry non-failed scans with empty OCR text")
	refPath := flag.String("reference", "ingredients.csv", "ingredient reference CSV")
	flag.Parse()

	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		log.Fatal("DB_DSN not set")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	cond := "s.failed = true"
	if *allEmpty {
		cond = "(s.failed = true OR s.ocr_text = '')"
	}
	query := `SELECT s.id, s.file_name, s.store_path FROM scans s
		JOIN profiles p ON p.id = s.profile_id
		JOIN users u ON u.id = p.user_id
		WHERE ` + cond
	args := []any{}
	if *profile != "" {
		query += " AND u.username = $1"
		args = append(args, *profile)
	}
	query += fmt.Sprintf(" ORDER BY s.id LIMIT %d", *limit)

	rows, err := db.Query(query, args...)
	if err != nil {
		log.Fatalf("query: %v", err)
	}
	defer rows.Close()

	pl := pipeline.New(pipeline.DefaultConfig())
	var ref *pipeline.ReferenceTable
	if r, err := pipeline.LoadReferenceCSV(*refPath); err == nil {
		ref = r
	} else {
		log.Printf("reference table unavailable (%v); using built-in fallbacks", err)
	}

	retried, fixed := 0, 0
	for rows.Next() {
		var id int
		var fname string
		var store sql.NullString
		if err := rows.Scan(&id, &fname, &store); err != nil {
			log.Printf("scan row: %v", err)
			continue
		}
		if !store.Valid || store.String == "" {
			log.Printf("skip id=%d file=%s: no stored path", id, fname)
			continue
		}
		data, err := os.ReadFile(store.String)
		if err != nil {
			log.Printf("read %s: %v", store.String, err)
			continue
		}
		retried++
		res, err := pl.Predict(data, ref)
		if err != nil {
			log.Printf("pipeline id=%d file=%s: %v", id, fname, err)
			continue
		}
		_, err = db.Exec(`UPDATE scans SET failed=false, failed_reason='', ocr_text=$1,
			ingredients_text=$2, allergens=$3, health_score=$4, token_count=$5, updated_at=now()
			WHERE id=$6`,
			res.OCRText, res.IngredientsText, strings.Join(res.Allergens, ","),
			res.HealthScore, len(res.Tokens), id)
		if err != nil {
			log.Printf("update id=%d: %v", id, err)
			continue
		}
		fixed++
		fmt.Printf("updated id=%d file=%s %s\n", id, fname, res.Summary())
	}
	log.Printf("rescan done: retried=%d updated=%d", retried, fixed)
}
