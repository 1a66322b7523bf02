package gen

import (
	"bytes"
	"context"
	"go/format"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"text/template"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/unknowntrojan/signature/pkg/signature"
)

var fileTemplate = template.Must(template.New("sigs.gotpl").Parse(`// Code generated by sigc. DO NOT EDIT.

package {{ .Package }}

import "github.com/unknowntrojan/signature/pkg/signature"

var (
{{- range .Results }}
	// {{ .Name }} matches {{ .Pattern }} in {{ .Triple.Module }}.
	{{ .Name }} = {{ printf "%#v" .Triple }}
{{- end }}
)
`))

// Result is one resolved manifest entry.
type Result struct {
	Name    string
	Pattern string
	Triple  signature.Triple
}

// ResolveManifest resolves every entry of m, at most GOMAXPROCS at a time.
// The first failure cancels the remaining work.
func ResolveManifest(ctx context.Context, images ImageSource, m Manifest) ([]Result, error) {
	results := make([]Result, len(m.Signatures))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, e := range m.Signatures {
		i, e := i, e
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			p, err := ParseTokens(e.Pattern)
			if err != nil {
				return errors.Wrap(err, e.Name)
			}
			t, err := Resolve(images, e.Module, p, WithHeaderSize(m.HeaderSize))
			if err != nil {
				return errors.Wrap(err, e.Name)
			}
			results[i] = Result{Name: e.Name, Pattern: p.String(), Triple: t}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Render returns the formatted Go source declaring one variable per result.
func Render(pkg string, results []Result) ([]byte, error) {
	var buf bytes.Buffer
	err := fileTemplate.Execute(&buf, struct {
		Package string
		Results []Result
	}{pkg, results})
	if err != nil {
		return nil, errors.Wrap(err, "render")
	}
	src, err := format.Source(buf.Bytes())
	if err != nil {
		return nil, errors.Wrap(err, "format generated source")
	}
	return src, nil
}

// Generate resolves m and writes the generated file to w. Nothing is written
// unless every entry resolves.
func Generate(ctx context.Context, images ImageSource, m Manifest, w io.Writer) error {
	results, err := ResolveManifest(ctx, images, m)
	if err != nil {
		return err
	}
	src, err := Render(m.Package, results)
	if err != nil {
		return err
	}
	_, err = w.Write(src)
	return err
}

// WriteFile replaces path with data. The content goes to a temporary file in
// the same directory first, so path is either untouched or complete.
func WriteFile(path string, data []byte) (err error) {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return errors.Wrap(err, "create temporary file")
	}
	defer func() {
		if err != nil {
			_ = os.Remove(f.Name())
		}
	}()
	if _, err = f.Write(data); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "write %s", f.Name())
	}
	if err = f.Close(); err != nil {
		return errors.Wrapf(err, "close %s", f.Name())
	}
	if err = os.Chmod(f.Name(), 0o644); err != nil {
		return errors.Wrapf(err, "chmod %s", f.Name())
	}
	if err = os.Rename(f.Name(), path); err != nil {
		return errors.Wrapf(err, "rename to %s", path)
	}
	return nil
}
