// Package gen resolves patterns against module images ahead of time and
// renders the results as Go source.
package gen

import (
	"github.com/pkg/errors"

	"github.com/unknowntrojan/signature/pkg/pattern"
	"github.com/unknowntrojan/signature/pkg/signature"
)

// HeaderSize is the default distance added to a file offset to get the
// offset from the module base. It fits PE images whose headers take 0x400
// bytes on disk and whose first section is mapped at 0x1000. ELF images
// mapped by the Linux provider need WithHeaderSize(0), since file offset X
// is mapped at base+X there.
const HeaderSize = 0xC00

var (
	ErrPatternNotFound = errors.New("pattern not found in module image")
	ErrMalformedArgs   = errors.New("malformed arguments")
)

// ImageSource returns the on-disk bytes of a module. module.Images and every
// module.Provider satisfy it.
type ImageSource interface {
	Static(name string) ([]byte, error)
}

type Option func(*options)

type options struct {
	headerSize uint64
}

func WithHeaderSize(size uint64) Option {
	return func(o *options) {
		o.headerSize = size
	}
}

// Resolve finds p in the image of moduleName and returns the offset a Static
// signature needs together with the byte found there.
func Resolve(images ImageSource, moduleName string, p pattern.Pattern, opts ...Option) (signature.Triple, error) {
	o := options{headerSize: HeaderSize}
	for _, opt := range opts {
		opt(&o)
	}
	if p.Empty() {
		return signature.Triple{}, errors.Wrapf(pattern.ErrEmpty, "resolve %s", moduleName)
	}

	image, err := images.Static(moduleName)
	if err != nil {
		return signature.Triple{}, errors.Wrapf(err, "read image of %s", moduleName)
	}
	x, ok := pattern.Find(image, p)
	if !ok {
		return signature.Triple{}, errors.Wrapf(ErrPatternNotFound, "%s in %s", p, moduleName)
	}
	return signature.Triple{
		Module: moduleName,
		Offset: uint64(x) + o.headerSize,
		Sanity: image[x],
	}, nil
}
