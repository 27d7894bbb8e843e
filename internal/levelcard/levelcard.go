// Package levelcard renders the PNG attached to level-up announcements.
package levelcard

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	Width  = 320
	Height = 96

	FileName = "level.png"
)

var (
	background = color.RGBA{R: 0x2B, G: 0x2D, B: 0x31, A: 0xFF}
	accent     = color.RGBA{R: 0x58, G: 0x65, B: 0xF2, A: 0xFF}
	foreground = color.RGBA{R: 0xF2, G: 0xF3, B: 0xF5, A: 0xFF}
)

// Render draws a card with the member name, the reached level and the
// number of messages that got them there.
func Render(name string, level, messages int64) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, Width, Height))
	draw.Draw(img, img.Bounds(), image.NewUniform(background), image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(0, 0, 6, Height), image.NewUniform(accent), image.Point{}, draw.Src)

	drawText(img, 20, 30, truncate(name, 40))
	drawText(img, 20, 54, fmt.Sprintf("LEVEL %d", level))
	drawText(img, 20, 78, fmt.Sprintf("%d MESSAGES", messages))

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func drawText(dst draw.Image, x, y int, text string) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(foreground),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "~"
}
