package moduletest

import "bytes"

// Image returns size bytes of fill with sig copied at off.
func Image(size int, fill byte, off int, sig []byte) []byte {
	res := bytes.Repeat([]byte{fill}, size)
	copy(res[off:], sig)
	return res
}

// Mapped returns image as it appears in memory when a header of headerSize
// zero bytes precedes it.
func Mapped(headerSize int, image []byte) []byte {
	res := make([]byte, headerSize+len(image))
	copy(res[headerSize:], image)
	return res
}
