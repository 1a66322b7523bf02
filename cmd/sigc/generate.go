package main

import (
	"bytes"
	"context"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"

	"github.com/unknowntrojan/signature/pkg/signature/gen"
)

func generate(ctx context.Context, params *generateParams) error {
	f, err := os.Open(params.Manifest)
	if err != nil {
		return errors.Wrap(err, "open manifest")
	}
	m, err := gen.ReadManifest(f)
	_ = f.Close()
	if err != nil {
		return errors.Wrap(err, params.Manifest)
	}

	images, err := params.images(m.Modules)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := gen.Generate(ctx, loggedImages{logger, images}, m, &buf); err != nil {
		return err
	}
	if err := gen.WriteFile(params.Output, buf.Bytes()); err != nil {
		return err
	}
	level.Info(logger).Log("msg", "signatures generated", "signatures", len(m.Signatures), "output", params.Output, "size", humanize.Bytes(uint64(buf.Len())))
	return nil
}
