package testutil

import (
	"os"
	"path/filepath"

	"github.com/smartystreets/goconvey/convey"

	"github.com/polydawn/lspws/fs"
)

/*
	Run the function with a fresh temp dir, removed afterwards.

	The path is symlink-resolved, so results compared against it
	won't trip over e.g. macOS's /var -> /private/var.
*/
func WithTmpdir(fn func(tmpDir fs.AbsolutePath)) {
	tmpBase, err := os.MkdirTemp("", "lspws-test-")
	convey.So(err, convey.ShouldBeNil)
	defer os.RemoveAll(tmpBase)
	tmpBase, err = filepath.EvalSymlinks(tmpBase)
	convey.So(err, convey.ShouldBeNil)
	fn(fs.MustAbsolutePath(tmpBase))
}
