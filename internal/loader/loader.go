// Package loader dispatches input files to the right front-end by
// extension and returns a decoded snapshot regardless of source format.
package loader

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	compression "github.com/vtsingaras/orct/internal/common/compressionutil"
	"github.com/vtsingaras/orct/internal/common/errors"
	"github.com/vtsingaras/orct/internal/mbn"
	"github.com/vtsingaras/orct/internal/nv/master"
	"github.com/vtsingaras/orct/internal/nv/model"
	"github.com/vtsingaras/orct/internal/nv/transform"
	"github.com/vtsingaras/orct/internal/qcn"
)

// Load reads any supported input (.xml, .qcn, .mbn) and returns a snapshot
// enriched with member-level values from the catalog. .qcn and .mbn inputs
// may be wrapped in gz/xz/bz2; a master XML is read from disk as plain
// text and is not decompressed.
func Load(path string, cat *model.Catalog) (*model.Snapshot, error) {
	switch ext(path) {
	case ".xml":
		// master files resolve includes against the filesystem, so they
		// are read in place rather than through the decompressor
		m, err := master.Load(path)
		if err != nil {
			return nil, err
		}
		return transform.Apply(cat, m), nil
	case ".qcn":
		data, _, err := compression.OpenInput(path)
		if err != nil {
			return nil, err
		}
		snap, err := qcn.Read(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		transform.Decode(snap, cat)
		return snap, nil
	case ".mbn":
		data, _, err := compression.OpenInput(path)
		if err != nil {
			return nil, err
		}
		snap, err := mbn.Read(data)
		if err != nil {
			return nil, err
		}
		transform.Decode(snap, cat)
		return snap, nil
	}
	return nil, fmt.Errorf("%w: cannot handle %s", errors.ErrUsage, path)
}

// Compile loads a master XML and writes it out as a QCN file.
func Compile(xmlPath, outPath string, cat *model.Catalog, opts qcn.Options) (*model.Snapshot, error) {
	if ext(outPath) != ".qcn" {
		return nil, fmt.Errorf("%w: output %s must have a .qcn extension", errors.ErrUsage, outPath)
	}
	m, err := master.Load(xmlPath)
	if err != nil {
		return nil, err
	}
	snap := transform.Apply(cat, m)
	if err := qcn.WriteFile(outPath, snap, opts); err != nil {
		return nil, err
	}
	return snap, nil
}

// ext returns the effective lower-cased extension, looking through any
// compression suffix.
func ext(path string) string {
	e := strings.ToLower(filepath.Ext(path))
	switch e {
	case ".gz", ".xz", ".bz2":
		return strings.ToLower(filepath.Ext(strings.TrimSuffix(path, filepath.Ext(path))))
	}
	return e
}
