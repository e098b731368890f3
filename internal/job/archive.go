package job

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"time"
)

type archiveEntry struct {
	name string
	path string
}

// writeArchive zips the entries into dst in the given order.
func writeArchive(dst string, entries []archiveEntry, modified time.Time) (err error) {
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()

	zw := zip.NewWriter(out)
	for _, e := range entries {
		if err := addFile(zw, e, modified); err != nil {
			return fmt.Errorf("archive %s: %w", e.name, err)
		}
	}
	return zw.Close()
}

func addFile(zw *zip.Writer, e archiveEntry, modified time.Time) error {
	src, err := os.Open(e.path)
	if err != nil {
		return err
	}
	defer src.Close()

	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:     e.name,
		Method:   zip.Deflate,
		Modified: modified,
	})
	if err != nil {
		return err
	}
	_, err = io.Copy(w, src)
	return err
}
