package window

import "image"

// bgraToRGBA converts packed BGRA rows (stride bytes apart) into an
// image.RGBA with alpha forced opaque. X11 and GDI both hand back BGRX
// data where the fourth byte is undefined.
func bgraToRGBA(data []byte, width, height, stride int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		src := data[y*stride:]
		dst := img.Pix[y*img.Stride:]
		for x := 0; x < width; x++ {
			si, di := x*4, x*4
			dst[di+0] = src[si+2]
			dst[di+1] = src[si+1]
			dst[di+2] = src[si+0]
			dst[di+3] = 0xff
		}
	}
	return img
}
