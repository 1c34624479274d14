package upload

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/danmuck/cictl/internal/artifacts"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

const DefaultSettle = 2 * time.Second

type WatchConfig struct {
	Dir      string
	Suffixes []string
	// Settle is how long a file must keep the same size before it is sent.
	Settle time.Duration
	Strict bool
	// OnResult is called after every upload attempt.
	OnResult func(Result, error)
}

// Watcher uploads matching files as they appear in a directory.
type Watcher struct {
	cfg      WatchConfig
	uploader Uploader
	seen     map[string]fileState
	pending  map[string]pendingFile
}

type fileState struct {
	size    int64
	modTime time.Time
}

func (s fileState) same(o fileState) bool {
	return s.size == o.size && s.modTime.Equal(o.modTime)
}

type pendingFile struct {
	lastEvent time.Time
	size      int64
}

func NewWatcher(cfg WatchConfig, uploader Uploader) *Watcher {
	if cfg.Settle <= 0 {
		cfg.Settle = DefaultSettle
	}
	cfg.Suffixes = artifacts.NormalizeSuffixes(cfg.Suffixes)
	return &Watcher{
		cfg:      cfg,
		uploader: uploader,
		seen:     make(map[string]fileState),
		pending:  make(map[string]pendingFile),
	}
}

// MarkUploaded records artifacts already sent so they are not sent again.
func (w *Watcher) MarkUploaded(list []artifacts.Artifact) {
	for _, a := range list {
		if fi, err := os.Stat(a.Path); err == nil {
			w.seen[a.Name] = fileState{size: fi.Size(), modTime: fi.ModTime()}
		}
	}
}

// Run blocks until ctx is done. In strict mode the first failed upload ends
// the loop with its error.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("upload watch: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(w.cfg.Dir); err != nil {
		return fmt.Errorf("upload watch %s: %w", w.cfg.Dir, err)
	}
	w.queueExisting(time.Now())
	log.Info().Str("dir", w.cfg.Dir).Strs("suffixes", w.cfg.Suffixes).Msg("upload watching")

	tick := w.cfg.Settle / 2
	if tick <= 0 {
		tick = w.cfg.Settle
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ev, time.Now())
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("upload watch error")
		case now := <-ticker.C:
			if err := w.flush(ctx, now); err != nil {
				return err
			}
		}
	}
}

// queueExisting marks matching files already in the directory as pending
// unless they were uploaded in their current state.
func (w *Watcher) queueExisting(now time.Time) {
	entries, err := os.ReadDir(w.cfg.Dir)
	if err != nil {
		log.Warn().Err(err).Str("dir", w.cfg.Dir).Msg("upload watch scan failed")
		return
	}
	for _, entry := range entries {
		name := entry.Name()
		if !artifacts.Matches(name, w.cfg.Suffixes) {
			continue
		}
		fi, err := os.Stat(filepath.Join(w.cfg.Dir, name))
		if err != nil || !fi.Mode().IsRegular() {
			continue
		}
		if prev, ok := w.seen[name]; ok && prev.same(fileState{size: fi.Size(), modTime: fi.ModTime()}) {
			continue
		}
		w.pending[name] = pendingFile{lastEvent: now, size: -1}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event, now time.Time) {
	name := filepath.Base(ev.Name)
	if !artifacts.Matches(name, w.cfg.Suffixes) {
		return
	}
	switch {
	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		delete(w.pending, name)
		delete(w.seen, name)
	case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
		p := w.pending[name]
		p.lastEvent = now
		p.size = -1
		w.pending[name] = p
		log.Debug().Str("file", name).Str("op", ev.Op.String()).Msg("upload watch event")
	}
}

// flush uploads pending files whose size is unchanged since the last tick and
// that have been quiet for the settle interval.
func (w *Watcher) flush(ctx context.Context, now time.Time) error {
	var ready []artifacts.Artifact
	for name, p := range w.pending {
		path := filepath.Join(w.cfg.Dir, name)
		fi, err := os.Stat(path)
		if err != nil || !fi.Mode().IsRegular() {
			delete(w.pending, name)
			continue
		}
		if now.Sub(p.lastEvent) < w.cfg.Settle || p.size != fi.Size() {
			p.size = fi.Size()
			w.pending[name] = p
			continue
		}
		delete(w.pending, name)
		state := fileState{size: fi.Size(), modTime: fi.ModTime()}
		if prev, ok := w.seen[name]; ok && prev.same(state) {
			continue
		}
		ready = append(ready, artifacts.Artifact{Name: name, Path: path, Size: fi.Size()})
	}
	if len(ready) == 0 {
		return nil
	}
	sort.Slice(ready, func(i, j int) bool { return ready[i].Name < ready[j].Name })

	res, err := w.uploader.Upload(ctx, ready)
	if w.cfg.OnResult != nil {
		w.cfg.OnResult(res, err)
	}
	if err != nil {
		log.Error().Err(err).Int("artifacts", len(ready)).Msg("upload watch failed")
		if w.cfg.Strict {
			return err
		}
		return nil
	}
	w.MarkUploaded(ready)
	return nil
}
