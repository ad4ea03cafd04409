package tray

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/png"
	"runtime"
)

const iconSize = 32

var (
	iconBlue   = color.RGBA{0x00, 0x78, 0xd4, 0xff}
	iconDark   = color.RGBA{0x33, 0x33, 0x33, 0xff}
	iconShadow = color.RGBA{0x00, 0x00, 0x00, 0x55}
)

// renderIcon draws a dashed selection frame over a dimmed corner, the same
// motif the overlay shows while selecting.
func renderIcon() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, iconSize, iconSize))
	for y := 20; y < iconSize; y++ {
		for x := 0; x < iconSize; x++ {
			img.SetRGBA(x, y, iconShadow)
		}
	}
	const left, top, right, bottom = 5, 6, 26, 22
	for x := left; x <= right; x++ {
		if (x/3)%2 == 0 {
			img.SetRGBA(x, top, iconBlue)
			img.SetRGBA(x, top+1, iconBlue)
			img.SetRGBA(x, bottom, iconBlue)
			img.SetRGBA(x, bottom-1, iconBlue)
		}
	}
	for y := top; y <= bottom; y++ {
		if (y/3)%2 == 0 {
			img.SetRGBA(left, y, iconBlue)
			img.SetRGBA(left+1, y, iconBlue)
			img.SetRGBA(right, y, iconBlue)
			img.SetRGBA(right-1, y, iconBlue)
		}
	}
	// Corner handles.
	for _, c := range [][2]int{{left, top}, {right, top}, {left, bottom}, {right, bottom}} {
		for dy := -2; dy <= 2; dy++ {
			for dx := -2; dx <= 2; dx++ {
				img.SetRGBA(c[0]+dx, c[1]+dy, iconDark)
			}
		}
	}
	return img
}

// IconPNG returns the tray icon encoded as PNG.
func IconPNG() []byte {
	var buf bytes.Buffer
	if err := png.Encode(&buf, renderIcon()); err != nil {
		return nil
	}
	return buf.Bytes()
}

// iconBytes returns the icon in the format systray expects on this platform.
func iconBytes() []byte {
	data := IconPNG()
	if runtime.GOOS == "windows" {
		return wrapICO(data, iconSize)
	}
	return data
}

// wrapICO embeds a PNG in a single-image ICO container.
func wrapICO(pngData []byte, size int) []byte {
	var buf bytes.Buffer
	// ICONDIR
	_ = binary.Write(&buf, binary.LittleEndian, [3]uint16{0, 1, 1})
	// ICONDIRENTRY
	buf.WriteByte(byte(size % 256))
	buf.WriteByte(byte(size % 256))
	buf.WriteByte(0) // palette
	buf.WriteByte(0) // reserved

	_ = binary.Write(&buf, binary.LittleEndian, uint16(1))  // planes
	_ = binary.Write(&buf, binary.LittleEndian, uint16(32)) // bpp
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(pngData)))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(6+16))
	buf.Write(pngData)
	return buf.Bytes()
}
