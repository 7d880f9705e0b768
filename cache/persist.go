package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/halverson/binwise/model"
)

// diskEntry is the on-disk JSON shape, one file per fingerprint.
type diskEntry struct {
	Fingerprint string          `json:"fingerprint"`
	CreatedAt   time.Time       `json:"created_at"`
	ExpiresAt   time.Time       `json:"expires_at"`
	Envelope    *model.Envelope `json:"envelope"`
}

// loadFromDisk restores unexpired entries and deletes expired or corrupt
// files. Persistence failures never surface to callers; the cache degrades
// to misses.
func (c *Cache) loadFromDisk() {
	if err := os.MkdirAll(c.dir, 0o700); err != nil {
		logrus.WithError(err).Warn("cache dir unavailable, running memory-only")
		c.dir = ""
		return
	}

	files, err := os.ReadDir(c.dir)
	if err != nil {
		logrus.WithError(err).Warn("cache dir unreadable, running memory-only")
		c.dir = ""
		return
	}

	now := time.Now()
	loaded, discarded := 0, 0
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
			continue
		}
		path := filepath.Join(c.dir, f.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var de diskEntry
		if err := json.Unmarshal(raw, &de); err != nil || de.Fingerprint == "" || de.Envelope == nil {
			os.Remove(path)
			discarded++
			continue
		}
		if now.After(de.ExpiresAt) {
			os.Remove(path)
			discarded++
			continue
		}
		if len(c.entries) >= c.maxEntries {
			break
		}
		c.entries[de.Fingerprint] = &entry{
			envelope:  de.Envelope,
			createdAt: de.CreatedAt,
			expiresAt: de.ExpiresAt,
		}
		loaded++
	}
	if loaded > 0 || discarded > 0 {
		logrus.WithFields(logrus.Fields{"loaded": loaded, "discarded": discarded}).Debug("cache restored")
	}
}

func (c *Cache) writeFile(fingerprint string, e *entry) {
	if c.dir == "" {
		return
	}
	de := diskEntry{
		Fingerprint: fingerprint,
		CreatedAt:   e.createdAt,
		ExpiresAt:   e.expiresAt,
		Envelope:    e.envelope,
	}
	raw, err := json.Marshal(de)
	if err != nil {
		return
	}
	if err := os.WriteFile(filepath.Join(c.dir, fingerprint+".json"), raw, 0o600); err != nil {
		logrus.WithError(err).Debug("cache persist failed")
	}
}

func (c *Cache) removeFile(fingerprint string) {
	if c.dir == "" {
		return
	}
	os.Remove(filepath.Join(c.dir, fingerprint+".json"))
}
