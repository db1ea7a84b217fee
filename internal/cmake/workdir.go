package cmake

import (
	"os"

	"github.com/crater-build/crater/internal/msg"
)

// pushd switches the process working directory and returns a restore
// function. The working directory is the one process-wide mutable
// resource this package touches; callers must defer the restore.
func pushd(dir string) (restore func(), err error) {
	prev, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	if err := os.Chdir(dir); err != nil {
		return nil, err
	}
	return func() {
		if err := os.Chdir(prev); err != nil {
			msg.Warn("could not restore working directory %s: %v", prev, err)
		}
	}, nil
}
