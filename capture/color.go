package capture

// hasGoodBlackLevel rejects frames that are mostly black (covered lens, IR
// emitter off) or mostly bright (saturated). img is read as 8-bit luma.
func hasGoodBlackLevel(img []byte) bool {
	total := len(img)
	if total == 0 {
		return false
	}
	dark := 0
	for i := 0; i < total; i++ {
		if img[i] < 80 {
			dark++
		}
	}
	darkness := float64(dark) / float64(total)
	return darkness > 0.1 && darkness < 0.7
}

// lumaPlane returns the bytes of buf that carry luminance for format.
// Formats without an addressable luma plane return nil.
func lumaPlane(buf []byte, format PixelFormat, width, height int) []byte {
	switch format {
	case FormatGrey:
		return buf
	case FormatNV12:
		if n := width * height; n > 0 && n <= len(buf) {
			return buf[:n]
		}
		return buf
	case FormatYUYV:
		luma := make([]byte, 0, len(buf)/2)
		for i := 0; i < len(buf); i += 2 {
			luma = append(luma, buf[i])
		}
		return luma
	}
	return nil
}
