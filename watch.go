// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package dxinterop

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// WatchConfig reloads the TOML file at path whenever it changes and passes
// each successfully parsed Config to onChange. Parse failures are logged and
// the previous configuration stays in effect. WatchConfig blocks until ctx is
// done or the watcher fails.
//
// The containing directory is watched rather than the file itself so that
// editors which replace the file on save are handled.
func WatchConfig(ctx context.Context, path string, onChange func(Config)) error {
	path = filepath.Clean(path)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(path)); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(e.Name) != path || !e.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			cfg, err := LoadConfig(path)
			if err != nil {
				Logger().Warn("config reload failed", "path", path, "err", err)
				continue
			}
			Logger().Debug("config reloaded", "path", path)
			onChange(cfg)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			Logger().Error("config watcher", "err", err)
		}
	}
}
