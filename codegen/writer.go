package codegen

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// pendingFile is one file of a write transaction.
type pendingFile struct {
	path string
	data []byte

	temp    string
	backup  string
	existed bool
	placed  bool
}

// fileWriter writes the files of one tool as a unit: every target ends up
// with its new content, or every target is left as it was.
type fileWriter struct {
	// rename performs the final move into place.
	rename      func(oldpath, newpath string) error
	backupDir   string
	keepBackups bool
}

func newFileWriter(backupDir string, keepBackups bool) *fileWriter {
	return &fileWriter{rename: os.Rename, backupDir: backupDir, keepBackups: keepBackups}
}

// write stages temp files next to each target, backs up existing targets,
// then renames each temp file into place. Any failure restores the backups
// and removes the temp files. It returns the backup path per target.
func (w *fileWriter) write(files []*pendingFile) (map[string]string, error) {
	defer func() {
		for _, f := range files {
			if f.temp != "" {
				_ = os.Remove(f.temp)
			}
		}
	}()

	for _, f := range files {
		if err := w.stage(f); err != nil {
			w.rollback(files)
			return nil, &WriteError{Path: f.path, Err: err}
		}
	}
	for _, f := range files {
		if err := w.backup(f); err != nil {
			w.rollback(files)
			return nil, &WriteError{Path: f.path, Err: err}
		}
	}
	for _, f := range files {
		if err := w.rename(f.temp, f.path); err != nil {
			w.rollback(files)
			return nil, &WriteError{Path: f.path, Err: fmt.Errorf("rename into place: %w", err)}
		}
		f.temp = ""
		f.placed = true
	}

	backups := make(map[string]string)
	for _, f := range files {
		if f.backup == "" {
			continue
		}
		backups[f.path] = f.backup
		if !w.keepBackups {
			_ = os.Remove(f.backup)
		}
	}
	return backups, nil
}

func (w *fileWriter) stage(f *pendingFile) error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.path)+".tmp-*")
	if err != nil {
		return err
	}
	f.temp = tmp.Name()
	if _, err := tmp.Write(f.data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	mode := fs.FileMode(0o644)
	if info, err := os.Stat(f.path); err == nil {
		mode = info.Mode().Perm()
	}
	return os.Chmod(f.temp, mode)
}

func (w *fileWriter) backup(f *pendingFile) error {
	data, err := os.ReadFile(f.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil
	case err != nil:
		return err
	}
	f.existed = true

	dir := filepath.Dir(f.path)
	if w.backupDir != "" {
		dir = w.backupDir
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	// A unique name leaves any file the user keeps at <target>.bak alone.
	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".bak-*")
	if err != nil {
		return err
	}
	f.backup = tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	return tmp.Close()
}

// rollback puts every already-placed target back to its prior state.
func (w *fileWriter) rollback(files []*pendingFile) {
	for _, f := range files {
		if !f.placed {
			if f.backup != "" {
				_ = os.Remove(f.backup)
			}
			continue
		}
		if !f.existed {
			_ = os.Remove(f.path)
			continue
		}
		if data, err := os.ReadFile(f.backup); err == nil {
			if err := writeSynced(f.path, data); err == nil {
				_ = os.Remove(f.backup)
			}
		}
	}
}

func writeSynced(path string, data []byte) error {
	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644) // #nosec G304 -- generated output path
	if err != nil {
		return err
	}
	if _, err := out.Write(data); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
