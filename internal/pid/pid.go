package pid

import (
	"os"
	"path/filepath"
	"strconv"
	"syscall"

	"codeberg.org/mutker/framectl/internal/errors"
)

const pidFile = "framectl.pid"

func path() string {
	return filepath.Join(os.TempDir(), pidFile)
}

// isRunning reports whether the process recorded in an existing PID file is
// still alive. A stale file from a crashed run is not an error.
func isRunning(path string) (bool, error) {
	bytes, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}

	pid, err := strconv.Atoi(string(bytes))
	if err != nil {
		return false, err
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false, err
	}

	return process.Signal(syscall.Signal(0)) == nil, nil
}

// Write writes the current process ID to a PID file, refusing if another
// live instance holds it.
func Write() error {
	errFactory := errors.New()
	path := path()

	if _, err := os.Stat(path); err == nil {
		running, err := isRunning(path)
		if err != nil {
			return errFactory.Wrap(errors.ErrInternal, err)
		}
		if running {
			return errFactory.New(errors.ErrAlreadyRunning)
		}
	}

	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o600); err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	return nil
}

// Remove removes the PID file.
func Remove() error {
	path := path()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	if err := os.Remove(path); err != nil {
		return errors.New().Wrap(errors.ErrInternal, err)
	}

	return nil
}
