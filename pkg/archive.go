package pkg

import (
	"archive/tar"
	"io"
	"os"
	"path/filepath"

	"github.com/andybalholm/brotli"
	"github.com/rotisserie/eris"
	"github.com/ulikunitz/xz"
)

// ArchiveFormats lists the supported compression formats for PackArchive
var ArchiveFormats = []string{"xz", "br"}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

func newCompressor(w io.Writer, format string) (io.WriteCloser, error) {
	switch format {
	case "xz":
		return xz.NewWriter(w)
	case "br":
		return brotli.NewWriterLevel(w, brotli.BestCompression), nil
	case "":
		return nopCloser{w}, nil
	}

	return nil, eris.Errorf("unsupported archive format %s", format)
}

// PackArchive writes the contents of srcDir as a tar stream compressed with format (xz or br)
// to dest. Entries are stored relative to srcDir in lexical order. An empty format writes an
// uncompressed tar file.
func PackArchive(srcDir, dest, format string) error {
	info, err := os.Stat(srcDir)
	if err != nil {
		return eris.Wrapf(err, "failed to open %s", srcDir)
	}
	if !info.IsDir() {
		return eris.Errorf("%s is not a directory", srcDir)
	}

	if err = os.MkdirAll(filepath.Dir(dest), 0770); err != nil {
		return eris.Wrapf(err, "failed to create parent directory for %s", dest)
	}

	hdl, err := os.Create(dest)
	if err != nil {
		return eris.Wrapf(err, "failed to create %s", dest)
	}
	defer hdl.Close()

	compressor, err := newCompressor(hdl, format)
	if err != nil {
		return err
	}

	tw := tar.NewWriter(compressor)
	absDest, _ := filepath.Abs(dest)

	err = filepath.Walk(srcDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		// don't pack the archive into itself
		if absPath, _ := filepath.Abs(path); absPath == absDest {
			return nil
		}

		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return eris.Wrapf(err, "failed to build header for %s", path)
		}

		header.Name = filepath.ToSlash(rel)
		if info.IsDir() {
			header.Name += "/"
		}

		if err = tw.WriteHeader(header); err != nil {
			return eris.Wrapf(err, "failed to write header for %s", path)
		}

		if !info.Mode().IsRegular() {
			return nil
		}

		src, err := os.Open(path)
		if err != nil {
			return eris.Wrapf(err, "failed to open %s", path)
		}
		defer src.Close()

		_, err = io.Copy(tw, src)
		if err != nil {
			return eris.Wrapf(err, "failed to pack %s", path)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err = tw.Close(); err != nil {
		return eris.Wrap(err, "failed to finish tar stream")
	}

	if err = compressor.Close(); err != nil {
		return eris.Wrap(err, "failed to finish compression")
	}

	return hdl.Close()
}

// ArchiveName returns the file name for a package archive
func ArchiveName(base, format string) string {
	name := base + ".tar"
	if format != "" {
		name += "." + format
	}

	return name
}
