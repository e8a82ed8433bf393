package cmd

import (
	"fmt"
	"os"

	"github.com/corona10/goimagehash"
	"github.com/lepinkainen/imgmin/imaging"
	"github.com/lepinkainen/imgmin/ui"
)

// CompareCmd reports how similar images look using perceptual hashing. It is
// meant for checking a compressed file against its original.
type CompareCmd struct {
	Files     []string `arg:"" name:"files" help:"Images to compare" type:"existingfile"`
	Threshold int      `help:"Hamming distance threshold for similarity (0-64)" default:"10"`
}

func (cmd *CompareCmd) Run() error {
	if len(cmd.Files) < 2 {
		fmt.Printf("%s\n", ui.ErrorStyle.Render("❌ Need at least 2 files to compare"))
		return nil
	}

	fmt.Printf("%s\n", ui.InfoStyle.Render(fmt.Sprintf("Calculating perceptual hashes for %d files...", len(cmd.Files))))

	type FileHash struct {
		File string
		Size int
		Hash *goimagehash.ImageHash
	}

	var fileHashes []FileHash

	for _, file := range cmd.Files {
		if !imaging.IsImageFile(file) {
			fmt.Printf("⚠️  %s is not a PNG or JPG file, skipping\n", file)
			continue
		}

		data, err := os.ReadFile(file)
		if err != nil {
			fmt.Printf("%s\n", ui.ErrorStyle.Render(fmt.Sprintf("❌ Error reading %s: %v", file, err)))
			continue
		}

		hash, err := imaging.PerceptualHash(data)
		if err != nil {
			fmt.Printf("%s\n", ui.ErrorStyle.Render(fmt.Sprintf("❌ Error calculating perceptual hash for %s: %v", file, err)))
			continue
		}

		fileHashes = append(fileHashes, FileHash{File: file, Size: len(data), Hash: hash})
		fmt.Printf("%s\n", ui.SuccessStyle.Render(fmt.Sprintf("✅ Processed %s (%d bytes)", file, len(data))))
	}

	fmt.Printf("\n%s\n", ui.InfoStyle.Render(fmt.Sprintf("Comparing %d files (threshold: %d):", len(fileHashes), cmd.Threshold)))

	found := false
	for i := 0; i < len(fileHashes); i++ {
		for j := i + 1; j < len(fileHashes); j++ {
			a, b := fileHashes[i], fileHashes[j]
			distance, err := a.Hash.Distance(b.Hash)
			if err != nil {
				fmt.Printf("%s\n", ui.ErrorStyle.Render(fmt.Sprintf("❌ Error comparing %s and %s: %v", a.File, b.File, err)))
				continue
			}

			if distance <= cmd.Threshold {
				fmt.Printf("🎯 Similar (distance %d, %+d bytes): %s ↔ %s\n", distance, b.Size-a.Size, a.File, b.File)
				found = true
			} else {
				fmt.Printf("%s\n", ui.DimStyle.Render(fmt.Sprintf("   Different (distance %d): %s ↔ %s", distance, a.File, b.File)))
			}
		}
	}

	if !found {
		fmt.Printf("%s\n", ui.SuccessStyle.Render("✅ No similar files found within threshold"))
	}

	return nil
}
