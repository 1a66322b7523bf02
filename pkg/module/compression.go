package module

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/spf13/afero"
)

var errCorruptedImage = errors.New("corrupted module image")

// imageCodec recognises a compressed image by the first bytes of its file.
type imageCodec struct {
	name  string
	magic []byte
	open  func(io.Reader) (io.ReadCloser, error)
}

var imageCodecs = []imageCodec{
	{
		name:  "gzip",
		magic: []byte{0x1f, 0x8b},
		open: func(r io.Reader) (io.ReadCloser, error) {
			return gzip.NewReader(r)
		},
	},
	{
		name:  "zstd",
		magic: []byte{0x28, 0xb5, 0x2f, 0xfd},
		open: func(r io.Reader) (io.ReadCloser, error) {
			d, err := zstd.NewReader(r)
			if err != nil {
				return nil, err
			}
			return d.IOReadCloser(), nil
		},
	},
}

// readImage reads the file at p, decompressing it on the fly when it starts
// with the magic of one of imageCodecs. Decoding failures wrap
// errCorruptedImage.
func readImage(fs afero.Fs, p string) ([]byte, error) {
	f, err := fs.Open(p)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	br := bufio.NewReader(f)
	// a short file just has no magic, the read error shows up below
	head, _ := br.Peek(4)
	for _, c := range imageCodecs {
		if !bytes.HasPrefix(head, c.magic) {
			continue
		}
		r, err := c.open(br)
		if err != nil {
			return nil, fmt.Errorf("open %s stream: %w: %w", c.name, errCorruptedImage, err)
		}
		defer r.Close()
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("decompress %s stream: %w: %w", c.name, errCorruptedImage, err)
		}
		return data, nil
	}
	return io.ReadAll(br)
}
