package config

import (
	"log/slog"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// liveKeys are the keys a running server applies without a restart.
var liveKeys = map[string]bool{
	"log_level": true,
}

// ChangeHandler receives the reloaded config and the yaml keys that differ
// from the previous one.
type ChangeHandler func(cfg *Config, changed []string)

// Watcher reloads the config file when it is written and reports which
// keys changed. The parent directory is watched so editors that save by
// rename are picked up too.
type Watcher struct {
	path   string
	fs     *fsnotify.Watcher
	logger *slog.Logger

	mu       sync.Mutex
	debounce time.Duration
	current  *Config
	handlers []ChangeHandler

	stop     chan struct{}
	stopOnce sync.Once
}

// Watch starts watching path. current is the config the process is running
// with; reloads are compared against it.
func Watch(path string, current *Config, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if current == nil {
		current = Default()
	}
	path = filepath.Clean(path)

	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fs.Add(filepath.Dir(path)); err != nil {
		fs.Close()
		return nil, err
	}

	w := &Watcher{
		path:     path,
		fs:       fs,
		debounce: 300 * time.Millisecond,
		logger:   logger,
		current:  current,
		stop:     make(chan struct{}),
	}
	go w.loop()
	logger.Info("config watcher started", "path", path)
	return w, nil
}

// OnChange registers h for every reload that changes at least one key.
func (w *Watcher) OnChange(h ChangeHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers = append(w.handlers, h)
}

// SetDebounce sets how long writes must settle before a reload.
func (w *Watcher) SetDebounce(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.debounce = d
}

// Current returns the last config loaded successfully.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Stop ends the watch. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
		w.fs.Close()
	})
}

func (w *Watcher) loop() {
	var pending *time.Timer
	defer func() {
		if pending != nil {
			pending.Stop()
		}
	}()

	for {
		select {
		case <-w.stop:
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if pending != nil {
				pending.Stop()
			}
			w.mu.Lock()
			delay := w.debounce
			w.mu.Unlock()
			pending = time.AfterFunc(delay, w.reload)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Error("config watcher error", "error", err)
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Error("config reload failed, keeping previous values", "path", w.path, "error", err)
		return
	}

	w.mu.Lock()
	changed := Changed(w.current, cfg)
	if len(changed) == 0 {
		w.mu.Unlock()
		return
	}
	w.current = cfg
	handlers := append([]ChangeHandler(nil), w.handlers...)
	w.mu.Unlock()

	var restart []string
	for _, key := range changed {
		if !liveKeys[key] {
			restart = append(restart, key)
		}
	}
	if len(restart) > 0 {
		w.logger.Warn("config keys changed that only apply after a restart", "keys", restart)
	}
	w.logger.Info("config reloaded", "path", w.path, "changed", changed)

	for _, h := range handlers {
		h(cfg, changed)
	}
}

// Changed lists the yaml keys whose values differ between a and b, in field
// order.
func Changed(a, b *Config) []string {
	va, vb := reflect.ValueOf(a).Elem(), reflect.ValueOf(b).Elem()
	t := va.Type()

	var keys []string
	for i := 0; i < t.NumField(); i++ {
		key, _, _ := strings.Cut(t.Field(i).Tag.Get("yaml"), ",")
		if key == "" || key == "-" {
			continue
		}
		if !reflect.DeepEqual(va.Field(i).Interface(), vb.Field(i).Interface()) {
			keys = append(keys, key)
		}
	}
	return keys
}

