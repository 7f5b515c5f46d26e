package document

import (
	"os"
	"path/filepath"

	"github.com/contractops/msa-extractor/constants"
	"github.com/contractops/msa-extractor/internal/common"
)

func formatOf(path string) constants.FileFormat {
	return constants.MapExtToFormat(filepath.Ext(path))
}

// validatePath runs the pre-open checks shared by every document kind.
func validatePath(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return common.FileError(
				"file does not exist",
				map[string]any{"file_path": path},
			)
		}
		return common.FileError("cannot stat file",
			map[string]any{"file_path": path, "cause": err.Error()})
	}
	if info.IsDir() {
		return common.FileError(
			"path is a directory, not a file",
			map[string]any{"file_path": path},
		)
	}
	if info.Size() == 0 {
		return common.FileError(
			"file is empty",
			map[string]any{"file_path": path},
		)
	}
	f, err := os.Open(path)
	if err != nil {
		return common.FileError("file is not readable",
			map[string]any{"file_path": path, "cause": err.Error()})
	}
	return f.Close()
}
