package sidecar

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// portfileWatcher watches the portfile's parent directory for the portfile
// being removed out-of-band while the sidecar is still serving. spec.md's
// design notes say third-party deletion of the portfile "is not modeled...
// implementations may log and continue" -- this is that concrete, narrow
// home for it: it only logs a warning, it does not resurrect the portfile
// or stop the server. Grounded on the teacher's internal/watcher.Watcher,
// narrowed from a recursive multi-root directory watcher to a single file.
type portfileWatcher struct {
	dbPath string
	logger *zap.Logger
	fsw    *fsnotify.Watcher
	done   chan struct{}
}

// startPortfileWatcher begins watching dbPath's portfile for removal. The
// returned watcher must be stopped with stop() when the server shuts down.
func startPortfileWatcher(dbPath string, logger *zap.Logger) (*portfileWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(portfilePath(dbPath))
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	pw := &portfileWatcher{
		dbPath: dbPath,
		logger: logger,
		fsw:    fsw,
		done:   make(chan struct{}),
	}
	go pw.run()
	return pw, nil
}

func (pw *portfileWatcher) run() {
	target := portfilePath(pw.dbPath)
	for {
		select {
		case <-pw.done:
			return
		case ev, ok := <-pw.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(target) {
				continue
			}
			if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 && pw.logger != nil {
				pw.logger.Warn("portfile removed out-of-band while sidecar is running",
					zap.String("path", target))
			}
		case err, ok := <-pw.fsw.Errors:
			if !ok {
				return
			}
			if err != nil && pw.logger != nil {
				pw.logger.Debug("portfile watcher error", zap.Error(err))
			}
		}
	}
}

// stop releases the watcher's resources.
func (pw *portfileWatcher) stop() {
	select {
	case <-pw.done:
		return
	default:
	}
	close(pw.done)
	_ = pw.fsw.Close()
}
