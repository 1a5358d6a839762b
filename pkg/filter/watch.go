package filter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/macropower/simplerules/pkg/log"
	"github.com/macropower/simplerules/pkg/ruleset"
)

// DefaultDebounce is the quiet period after a change before rules reload.
const DefaultDebounce = 250 * time.Millisecond

// ErrNothingToWatch is returned by [SimpleRules.Watch] when none of the rule
// locations exist.
var ErrNothingToWatch = errors.New("no rule locations could be watched")

// ReloadFunc is called after each reload triggered by [SimpleRules.Watch].
type ReloadFunc func(ctx context.Context, set *ruleset.Set, err error)

// Watch reloads the rules whenever a rule file changes, until ctx is done.
// It watches the real filesystem, regardless of the filesystem the filter
// reads from.
func (s *SimpleRules) Watch(ctx context.Context, debounce time.Duration, onReload ReloadFunc) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}

	defer func() {
		err := watcher.Close()
		if err != nil {
			log.WithContext(ctx).ErrorContext(ctx, "close watcher", slog.Any("err", err))
		}
	}()

	logger := log.WithContext(ctx)
	dir, file := s.RulesDir(), s.RulesFile()

	watched := 0
	for _, path := range watchDirs(dir, file) {
		err := watcher.Add(path)
		if err != nil {
			logger.WarnContext(ctx, "can't watch directory", slog.String("path", path), slog.Any("err", err))

			continue
		}

		watched++
	}

	if watched == 0 {
		return ErrNothingToWatch
	}

	logger.DebugContext(ctx, "added file watchers", slog.Int("count", watched))

	timer := time.NewTimer(debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			timer.Stop()

			return nil

		case evt, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			// Ignore events that are not related to file content changes.
			if evt.Has(fsnotify.Chmod) {
				continue
			}

			if dir != "" && evt.Name == dir && evt.Has(fsnotify.Create) {
				err := watcher.Add(dir)
				if err != nil {
					logger.WarnContext(ctx, "can't watch directory", slog.String("path", dir), slog.Any("err", err))
				}
			}

			if !isRuleEvent(evt.Name, dir, file) {
				continue
			}

			logger.DebugContext(ctx, "rule file changed", slog.String("event", evt.String()))
			timer.Reset(debounce)

		case <-timer.C:
			set, err := s.Reload(ctx)
			if err != nil {
				logger.ErrorContext(ctx, "reload simple rules", slog.Any("err", err))
			}

			if onReload != nil {
				onReload(ctx, set, err)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			logger.ErrorContext(ctx, "watch rule files", slog.Any("err", err))
		}
	}
}

// watchDirs returns the directories to watch: the rule directory and the
// directories containing it and the rule file.
func watchDirs(dir, file string) []string {
	var dirs []string

	add := func(path string) {
		for _, d := range dirs {
			if d == path {
				return
			}
		}

		dirs = append(dirs, path)
	}

	if dir != "" {
		add(filepath.Dir(dir))
		add(dir)
	}

	if file != "" {
		add(filepath.Dir(file))
	}

	return dirs
}

func isRuleEvent(name, dir, file string) bool {
	if file != "" && name == file {
		return true
	}

	if dir == "" {
		return false
	}

	if name == dir {
		return true
	}

	return filepath.Dir(name) == dir && strings.HasSuffix(name, ruleset.RuleFileExt)
}
