package uploader

import (
	"archive/zip"
	"bytes"
	"io"
	"os"

	"github.com/klever-verify/core/pkg/types"
)

// archiveFiles zips the files a report references under their archive
// member names, mirroring the original's ArchiveFiles helper.
func archiveFiles(files []types.FileRef) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	for _, f := range files {
		arcName := f.ArcName
		if arcName == "" {
			arcName = f.Path
		}
		w, err := zw.Create(arcName)
		if err != nil {
			return nil, err
		}
		src, err := os.Open(f.Path)
		if err != nil {
			return nil, err
		}
		_, copyErr := io.Copy(w, src)
		src.Close()
		if copyErr != nil {
			return nil, copyErr
		}
	}

	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
