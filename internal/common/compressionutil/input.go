package compression

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/dsnet/compress/bzip2"
	"github.com/ulikunitz/xz"

	"github.com/vtsingaras/orct/internal/common/fsutil"
)

// OpenInput reads an input file, transparently decompressing gzip, xz and
// bzip2 wrappers. It returns the decompressed contents together with the
// inner file name (the original name with the compression suffix removed)
// so callers can keep dispatching on the real extension.
func OpenInput(path string) ([]byte, string, error) {
	data, err := fsutil.ReadFile(path)
	if err != nil {
		return nil, "", err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz":
		gz, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, "", fmt.Errorf("failed to decompress %s: %w", path, err)
		}
		defer gz.Close()
		out, err := io.ReadAll(gz)
		if err != nil {
			return nil, "", fmt.Errorf("failed to decompress %s: %w", path, err)
		}
		return out, strings.TrimSuffix(path, filepath.Ext(path)), nil
	case ".xz":
		xr, err := xz.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, "", fmt.Errorf("failed to decompress %s: %w", path, err)
		}
		out, err := io.ReadAll(xr)
		if err != nil {
			return nil, "", fmt.Errorf("failed to decompress %s: %w", path, err)
		}
		return out, strings.TrimSuffix(path, filepath.Ext(path)), nil
	case ".bz2":
		br, err := bzip2.NewReader(bytes.NewReader(data), nil)
		if err != nil {
			return nil, "", fmt.Errorf("failed to decompress %s: %w", path, err)
		}
		defer br.Close()
		out, err := io.ReadAll(br)
		if err != nil {
			return nil, "", fmt.Errorf("failed to decompress %s: %w", path, err)
		}
		return out, strings.TrimSuffix(path, filepath.Ext(path)), nil
	}

	return data, path, nil
}
