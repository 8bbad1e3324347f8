package render

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/vtsingaras/orct/internal/common/errors"
	"github.com/vtsingaras/orct/internal/loader"
	"github.com/vtsingaras/orct/internal/nv/model"
	"github.com/vtsingaras/orct/internal/qcn"
)

// Diff renders both inputs through the printer and hands the text files
// to the external diff tool. The tool's exit code is returned so the
// caller can propagate it. XML inputs are first compiled to a temporary
// QCN and read back, so the diff reflects the round trip rather than the
// text.
func Diff(a, b string, cat *model.Catalog, tool string, verbose int, qcnOpts qcn.Options) (int, error) {
	tmpDir, err := os.MkdirTemp("", "orct-diff")
	if err != nil {
		return -1, fmt.Errorf("%w: %v", errors.ErrIO, err)
	}
	defer os.RemoveAll(tmpDir)

	fa, err := renderInput(a, cat, tmpDir, "a", verbose, qcnOpts)
	if err != nil {
		return -1, err
	}
	fb, err := renderInput(b, cat, tmpDir, "b", verbose, qcnOpts)
	if err != nil {
		return -1, err
	}

	cmd := exec.Command(tool, fa, fb)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return exitErr.ExitCode(), nil
		}
		return -1, fmt.Errorf("%w: running %s: %v", errors.ErrIO, tool, err)
	}
	return 0, nil
}

// renderInput normalises one input and writes its printed form into the
// temp directory, returning the text file path.
func renderInput(path string, cat *model.Catalog, tmpDir, tag string, verbose int, qcnOpts qcn.Options) (string, error) {
	snap, err := normalise(path, cat, tmpDir, tag, qcnOpts)
	if err != nil {
		return "", err
	}
	out := filepath.Join(tmpDir, tag+".txt")
	f, err := os.Create(out)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errors.ErrIO, err)
	}
	defer f.Close()
	p := &Printer{W: f, Verbose: verbose}
	p.Print(snap)
	return out, nil
}

func normalise(path string, cat *model.Catalog, tmpDir, tag string, qcnOpts qcn.Options) (*model.Snapshot, error) {
	if strings.EqualFold(filepath.Ext(path), ".xml") {
		tmpQcn := filepath.Join(tmpDir, tag+".qcn")
		if _, err := loader.Compile(path, tmpQcn, cat, qcnOpts); err != nil {
			return nil, err
		}
		return loader.Load(tmpQcn, cat)
	}
	return loader.Load(path, cat)
}
