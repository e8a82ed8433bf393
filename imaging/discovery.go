package imaging

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// FindImageFilesRecursively scans a directory for images that have not been minified yet
func FindImageFilesRecursively(directory string) ([]string, error) {
	var files []string
	var err error

	// Use fd if available, otherwise fall back to filepath.WalkDir
	if isFdAvailable() {
		files, err = findImagesWithFd(directory)
		if err != nil {
			files, err = findImagesWithWalkDir(directory)
		}
	} else {
		files, err = findImagesWithWalkDir(directory)
	}

	return files, err
}

// ExpandPaths replaces directory arguments with the images found inside them
func ExpandPaths(paths []string) ([]string, error) {
	var expanded []string

	for _, path := range paths {
		fi, err := os.Stat(path)
		if err != nil {
			// keep it; loading the file reports the error to the user
			expanded = append(expanded, path)
			continue
		}

		if !fi.IsDir() {
			expanded = append(expanded, path)
			continue
		}

		images, err := FindImageFilesRecursively(path)
		if err != nil {
			return nil, err
		}
		expanded = append(expanded, images...)
	}

	return expanded, nil
}

func isFdAvailable() bool {
	_, err := exec.LookPath("fd")
	return err == nil
}

func findImagesWithWalkDir(directory string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(directory, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			return nil
		}

		if IsImageFile(path) && !IsMinified(path) {
			files = append(files, path)
		}

		return nil
	})

	return files, err
}

func findImagesWithFd(directory string) ([]string, error) {
	cmd := exec.Command("fd", `\.(png|jpe?g)$`, "--type", "f", "--ignore-case", directory)
	output, err := cmd.Output()
	if err != nil {
		return nil, err
	}

	var files []string
	for _, line := range strings.Split(strings.TrimSpace(string(output)), "\n") {
		if line != "" && IsImageFile(line) && !IsMinified(line) {
			files = append(files, line)
		}
	}

	return files, nil
}
