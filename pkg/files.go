package pkg

import (
	"io"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
)

// CopyFile copies src to dest, replacing dest if it exists. The parent directory of dest
// has to exist.
func CopyFile(src, dest string) error {
	info, err := os.Stat(src)
	if err != nil {
		return eris.Wrapf(err, "Could not stat %s", src)
	}

	if info.IsDir() {
		return eris.Errorf("%s is a directory", src)
	}

	in, err := os.Open(src)
	if err != nil {
		return eris.Wrapf(err, "Failed to open %s", src)
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return eris.Wrapf(err, "Failed to create %s", dest)
	}

	_, err = io.Copy(out, in)
	if err != nil {
		out.Close()
		return eris.Wrapf(err, "Failed to copy %s to %s", src, dest)
	}

	return out.Close()
}

// CopyInto copies src into the directory dir, keeping its file name
func CopyInto(src, dir string) error {
	return CopyFile(src, filepath.Join(dir, filepath.Base(src)))
}
