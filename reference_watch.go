package main

import (
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchReferenceTable reloads the reference CSV when it changes on disk, so
// table edits take effect without a restart. Watches the parent directory:
// editors commonly replace the file rather than write in place.
func watchReferenceTable(path string) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("reference watch unavailable: %v", err)
		return
	}
	defer w.Close()
	dir := filepath.Dir(path)
	if err := w.Add(dir); err != nil {
		log.Printf("reference watch %s: %v", dir, err)
		return
	}
	base := filepath.Base(path)
	log.Printf("watching %s for reference table changes", path)

	var pending *time.Timer
	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != base {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			// debounce bursts of write events into one reload
			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(300*time.Millisecond, loadReferenceTable)
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			log.Printf("reference watch error: %v", err)
		}
	}
}
