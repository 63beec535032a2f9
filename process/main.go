package main

import (
	"flag"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"nutriscan/models"
	"nutriscan/pkg/pipeline"
)

// Batch ingest daemon: processes every label image in a directory through the
// prediction pipeline and records the results as scans, optionally staying
// alive to pick up new files as they are dropped in.

var db *gorm.DB

var (
	verbose  bool
	simulate bool
)

var predictor *pipeline.Pipeline
var refTable pipeline.TableStore

func main() {
	dir := flag.String("dir", envOr("SCAN_INBOX", "inbox"), "directory of label images to ingest")
	profileName := flag.String("profile", "admin", "username whose profile owns the ingested scans")
	workers := flag.Int("workers", defaultWorkers(), "concurrent pipeline workers")
	watch := flag.Bool("watch", false, "keep running and process newly created files")
	refPath := flag.String("reference", envOr("REFERENCE_TABLE", "ingredients.csv"), "ingredient reference CSV")
	flag.BoolVar(&verbose, "verbose", false, "log per-file details")
	flag.BoolVar(&simulate, "simulate", false, "run the pipeline but skip DB writes")
	flag.Parse()

	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		log.Fatal("DB_DSN not set")
	}
	var err error
	db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("open db: %v", err)
	}

	predictor = pipeline.New(pipeline.DefaultConfig())
	if ref, err := pipeline.LoadReferenceCSV(*refPath); err != nil {
		log.Printf("reference table unavailable (%v); using built-in fallbacks", err)
	} else {
		refTable.Swap(ref)
	}

	profile, err := lookupProfile(*profileName)
	if err != nil {
		log.Fatalf("profile for %s: %v", *profileName, err)
	}

	files := listImageFiles(*dir)
	log.Printf("ingesting %d files from %s with %d workers", len(files), *dir, *workers)
	runWorkerPool(*dir, profile, files, *workers)

	if *watch {
		if err := watchDirectory(*dir, profile, *workers); err != nil {
			log.Fatalf("watch %s: %v", *dir, err)
		}
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func defaultWorkers() int {
	n := runtime.NumCPU()
	if n > 4 {
		n = 4 // each worker holds a Tesseract instance; keep memory bounded
	}
	return n
}

func lookupProfile(username string) (models.Profile, error) {
	var user models.User
	if err := db.Where("username = ?", username).First(&user).Error; err != nil {
		return models.Profile{}, err
	}
	var profile models.Profile
	if err := db.Where("user_id = ?", user.ID).First(&profile).Error; err != nil {
		return models.Profile{}, err
	}
	return profile, nil
}

func listImageFiles(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !isSupportedExt(e.Name()) {
			continue
		}
		out = append(out, e.Name())
	}
	sort.Strings(out)
	return out
}

func isSupportedExt(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tif", ".tiff", ".webp":
		return true
	}
	return false
}

// runWorkerPool feeds the file list through a bounded worker pool and blocks
// until the batch drains.
func runWorkerPool(dir string, profile models.Profile, files []string, workers int) {
	fileCh := make(chan string, 256)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for name := range fileCh {
				processSingleFile(dir, name, profile)
			}
		}()
	}
	for _, f := range files {
		fileCh <- f
	}
	close(fileCh)
	wg.Wait()
}

// processSingleFile runs one image through the pipeline and upserts its scan
// record. Idempotent per (profile, file name); failures are recorded on the
// row, never fatal to the batch.
func processSingleFile(dir, name string, profile models.Profile) {
	path := filepath.Join(dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("read %s: %v", path, err)
		return
	}

	scan := models.Scan{ProfileID: profile.ID, FileName: name, StorePath: path}
	var existing models.Scan
	if err := db.Where("profile_id = ? AND file_name = ?", profile.ID, name).First(&existing).Error; err == nil {
		if !existing.Failed && existing.OCRText != "" {
			if verbose {
				log.Printf("skip %s: already processed (scan id=%d)", name, existing.ID)
			}
			return
		}
		scan = existing
		scan.StorePath = path
	}

	res, err := predictor.Predict(data, refTable.Current())
	if err != nil {
		log.Printf("pipeline %s: %v", name, err)
		scan.Failed = true
		scan.FailedReason = err.Error()
	} else {
		scan.Failed = false
		scan.FailedReason = ""
		scan.OCRText = res.OCRText
		scan.IngredientsText = res.IngredientsText
		scan.Allergens = strings.Join(res.Allergens, ",")
		scan.HealthScore = res.HealthScore
		scan.TokenCount = len(res.Tokens)
		if verbose {
			log.Printf("%s: %s", name, res.Summary())
		}
	}

	if simulate {
		log.Printf("simulate: would save scan %s failed=%v health=%d", name, scan.Failed, scan.HealthScore)
		return
	}
	if err := db.Save(&scan).Error; err != nil {
		log.Printf("save scan %s: %v", name, err)
	}
}

// watchDirectory processes newly created files until interrupted. Events are
// debounced briefly so half-written files settle before the pipeline reads them.
func watchDirectory(dir string, profile models.Profile, workers int) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return err
	}
	log.Printf("watching %s (debounced) ...", dir)

	fileCh := make(chan string, 256)
	go func() {
		pending := map[string]time.Time{}
		ticker := time.NewTicker(250 * time.Millisecond)
		defer ticker.Stop()
		// periodic full rescan catches files whose create events were missed
		// (moves across filesystems, watcher restarts)
		rescan := time.NewTicker(5 * time.Minute)
		defer rescan.Stop()
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					close(fileCh)
					return
				}
				if ev.Op&fsnotify.Create == fsnotify.Create {
					name := filepath.Base(ev.Name)
					if !isSupportedExt(name) {
						continue
					}
					pending[name] = time.Now()
				}
			case <-ticker.C:
				now := time.Now()
				for name, t := range pending {
					if now.Sub(t) > 300*time.Millisecond { // stable
						fileCh <- name
						delete(pending, name)
					}
				}
			case <-rescan.C:
				for _, name := range listImageFiles(dir) {
					if _, queued := pending[name]; !queued {
						fileCh <- name
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					close(fileCh)
					return
				}
				log.Printf("watch error: %v", err)
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for name := range fileCh {
				processSingleFile(dir, name, profile)
			}
		}()
	}
	wg.Wait()
	return nil
}
