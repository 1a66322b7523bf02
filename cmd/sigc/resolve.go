package main

import (
	"context"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/unknowntrojan/signature/pkg/module"
	"github.com/unknowntrojan/signature/pkg/signature/gen"
)

// loggedImages reports every image handed to the resolver.
type loggedImages struct {
	logger log.Logger
	images gen.ImageSource
}

func (l loggedImages) Static(name string) ([]byte, error) {
	data, err := l.images.Static(name)
	if err != nil {
		return nil, err
	}
	level.Debug(l.logger).Log("msg", "module image read", "module", name, "size", humanize.IBytes(uint64(len(data))))
	return data, nil
}

func resolve(_ context.Context, out io.Writer, params *resolveParams) error {
	name, p, err := gen.ParseArgs(append([]string{params.Module}, params.Tokens...))
	if err != nil {
		return err
	}
	images, err := params.images(module.DefaultConfig())
	if err != nil {
		return err
	}
	t, err := gen.Resolve(loggedImages{logger, images}, name, p, gen.WithHeaderSize(params.HeaderSize))
	if err != nil {
		return err
	}
	level.Debug(logger).Log("msg", "pattern resolved", "module", name, "pattern", p.String(), "offset", fmt.Sprintf("0x%x", t.Offset))
	_, err = fmt.Fprintf(out, "%#v\n", t)
	return err
}
