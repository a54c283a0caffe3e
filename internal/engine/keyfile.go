// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package engine

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/renameio/v2"
)

const (
	keyFileSuffix    = ".key"
	socketFileSuffix = ".sock"
)

// KeyFilePath is where worker pid announces its session key.
func KeyFilePath(runtimeDir string, pid int) string {
	return filepath.Join(runtimeDir, strconv.Itoa(pid)+keyFileSuffix)
}

// SocketPath is the unix socket a worker with the given key listens on.
func SocketPath(runtimeDir, key string) string {
	return filepath.Join(runtimeDir, key+socketFileSuffix)
}

// SessionKeyFromSocket extracts the key from a socket path, if it is one.
func SessionKeyFromSocket(path string) (string, bool) {
	base := filepath.Base(path)
	if !strings.HasSuffix(base, socketFileSuffix) {
		return "", false
	}
	key := strings.TrimSuffix(base, socketFileSuffix)
	return key, key != ""
}

// WriteKeyFile atomically announces key for pid. Readers never observe a
// partially written file.
func WriteKeyFile(runtimeDir string, pid int, key string) (err error) {
	pending, err := renameio.NewPendingFile(KeyFilePath(runtimeDir, pid), renameio.WithPermissions(0o600))
	if err != nil {
		return fmt.Errorf("create pending key file: %w", err)
	}
	defer func() {
		if cerr := pending.Cleanup(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if _, err := pending.WriteString(key + "\n"); err != nil {
		return fmt.Errorf("write key file: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace key file: %w", err)
	}
	return nil
}

// RemoveKeyFile deletes the announcement for pid. Missing files are ignored.
func RemoveKeyFile(runtimeDir string, pid int) error {
	err := os.Remove(KeyFilePath(runtimeDir, pid))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// FileKeySource reads key announcements from a runtime directory.
type FileKeySource struct {
	Dir string
}

// SessionKey returns the announced key for pid, or "" if none yet.
func (f FileKeySource) SessionKey(pid int) (string, error) {
	data, err := os.ReadFile(KeyFilePath(f.Dir, pid))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// Forget removes the announcement of a terminated worker.
func (f FileKeySource) Forget(pid int) error {
	return RemoveKeyFile(f.Dir, pid)
}
