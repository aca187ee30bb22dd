package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	rperrors "github.com/relicta-tech/monorel/internal/errors"
)

// watchDebounce collapses bursts of events, such as an editor's
// write-then-rename, into one re-plan.
const watchDebounce = 300 * time.Millisecond

// watchedFiles are the file names whose edits change a plan.
var watchedFiles = map[string]bool{
	"package.json":        true,
	"pnpm-workspace.yaml": true,
}

// watchPlan runs replan once, then again after every relevant change under
// the workspace until ctx is done.
func watchPlan(ctx context.Context, app cliApp, replan func() error) error {
	const op = "cli.watchPlan"

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return rperrors.IOWrap(err, op, "create watcher")
	}
	defer func() { _ = watcher.Close() }()

	dirs, err := watchDirs(ctx, app)
	if err != nil {
		return err
	}
	for _, dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			return rperrors.IOWrap(err, op, "watch "+dir)
		}
	}
	changesetDir := filepath.Clean(app.ChangesetDir())

	if err := replan(); err != nil {
		return err
	}
	if !outputJSON {
		printSubtle(fmt.Sprintf("Watching %d directories, press Ctrl+C to stop", len(dirs)))
	}

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !relevantEvent(event, changesetDir) {
				continue
			}
			logger.Debug("change detected", "path", event.Name, "op", event.Op.String())
			timer.Reset(watchDebounce)

		case <-timer.C:
			if !outputJSON {
				fmt.Fprintln(out)
				printSubtle(fmt.Sprintf("[%s] change detected, re-planning", time.Now().Format("15:04:05")))
			}
			if err := replan(); err != nil {
				return err
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch error", "error", err)

		case <-ctx.Done():
			return nil
		}
	}
}

// watchDirs returns the workspace root, every package directory and the
// changeset directory when it exists.
func watchDirs(ctx context.Context, app cliApp) ([]string, error) {
	ws, err := app.Workspace(ctx)
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	var dirs []string
	add := func(dir string) {
		dir = filepath.Clean(dir)
		if !seen[dir] {
			seen[dir] = true
			dirs = append(dirs, dir)
		}
	}

	add(app.Root())
	for _, p := range ws.Packages() {
		add(filepath.Join(app.Root(), filepath.FromSlash(p.Path)))
	}
	if info, err := os.Stat(app.ChangesetDir()); err == nil && info.IsDir() {
		add(app.ChangesetDir())
	}
	return dirs, nil
}

func relevantEvent(event fsnotify.Event, changesetDir string) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	if watchedFiles[filepath.Base(event.Name)] {
		return true
	}
	return strings.HasPrefix(filepath.Clean(event.Name), changesetDir+string(filepath.Separator))
}
