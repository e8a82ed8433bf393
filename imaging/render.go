package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/nfnt/resize"
)

// ErrNotImage is returned when bytes cannot be decoded as an image
var ErrNotImage = errors.New("Error loading image, maybe it's not in Image format?")

// Preview is a decoded image ready for display in the terminal
type Preview struct {
	Format string
	Width  int
	Height int
	Size   int
	Image  image.Image
}

// Decode turns a byte buffer into a Preview. The buffer is only borrowed for
// the duration of the call.
func Decode(data []byte) (Preview, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Preview{}, fmt.Errorf("%w: %v", ErrNotImage, err)
	}

	b := img.Bounds()
	return Preview{
		Format: format,
		Width:  b.Dx(),
		Height: b.Dy(),
		Size:   len(data),
		Image:  img,
	}, nil
}

// Summary is a one-line description of the preview
func (p Preview) Summary() string {
	return fmt.Sprintf("%s %dx%d, %d bytes", strings.ToUpper(p.Format), p.Width, p.Height, p.Size)
}

// Thumbnail renders the image with half-block characters so that each text
// cell shows two pixel rows. maxWidth and maxHeight are in cells.
func (p Preview) Thumbnail(maxWidth, maxHeight int) string {
	if p.Image == nil || maxWidth <= 0 || maxHeight <= 0 {
		return ""
	}

	thumb := resize.Thumbnail(uint(maxWidth), uint(maxHeight*2), p.Image, resize.Bilinear)
	b := thumb.Bounds()

	var sb strings.Builder
	for y := b.Min.Y; y < b.Max.Y; y += 2 {
		for x := b.Min.X; x < b.Max.X; x++ {
			top := hexColor(thumb.At(x, y))
			style := lipgloss.NewStyle().Foreground(top)
			if y+1 < b.Max.Y {
				style = style.Background(hexColor(thumb.At(x, y+1)))
			}
			sb.WriteString(style.Render("▀"))
		}
		sb.WriteString("\n")
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

func hexColor(c interface{ RGBA() (r, g, b, a uint32) }) lipgloss.Color {
	r, g, b, _ := c.RGBA()
	return lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", r>>8, g>>8, b>>8))
}
