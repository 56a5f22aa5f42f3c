package ui

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"sync"
)

var iconOnce struct {
	sync.Once
	data []byte
}

// iconBytes renders the tray icon: a 16x16 rounded purple square. Encoding
// at startup avoids shipping a binary asset.
func iconBytes() []byte {
	iconOnce.Do(func() {
		img := image.NewRGBA(image.Rect(0, 0, 16, 16))
		fill := color.RGBA{R: 124, G: 58, B: 237, A: 255}
		for y := 0; y < 16; y++ {
			for x := 0; x < 16; x++ {
				corner := (x < 2 || x > 13) && (y < 2 || y > 13)
				if !corner {
					img.SetRGBA(x, y, fill)
				}
			}
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return
		}
		iconOnce.data = buf.Bytes()
	})
	return iconOnce.data
}
