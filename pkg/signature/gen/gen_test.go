package gen

import (
	"bytes"
	"context"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/unknowntrojan/signature/pkg/module"
	"github.com/unknowntrojan/signature/pkg/module/moduletest"
	"github.com/unknowntrojan/signature/pkg/pattern"
	"github.com/unknowntrojan/signature/pkg/signature"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var mzHeader = []byte{0xB8, 0x4D, 0x5A, 0x00, 0x00}

func testImages() *moduletest.Provider {
	return moduletest.New().
		Add("mtxex.dll", moduletest.Module{Image: moduletest.Image(0x2000, 0x90, 0x500, mzHeader)}).
		Add("other.dll", moduletest.Module{Image: moduletest.Image(0x100, 0xCC, 0x10, []byte{0x48, 0x89, 0x5C})})
}

func TestResolve(t *testing.T) {
	images := testImages()

	tr, err := Resolve(images, "mtxex.dll", pattern.MustParse("B8 4D 5A 00 00"))
	require.NoError(t, err)
	require.Equal(t, signature.Triple{Module: "mtxex.dll", Offset: 0x1100, Sanity: 0xB8}, tr)

	tr, err = Resolve(images, "mtxex.dll", pattern.MustParse("? 4D 5A"), WithHeaderSize(0x400))
	require.NoError(t, err)
	require.Equal(t, signature.Triple{Module: "mtxex.dll", Offset: 0x900, Sanity: 0xB8}, tr)

	// a leading wildcard takes its sanity byte from the image
	tr, err = Resolve(images, "mtxex.dll", pattern.MustParse("? B8 4D"))
	require.NoError(t, err)
	require.Equal(t, signature.Triple{Module: "mtxex.dll", Offset: 0x10FF, Sanity: 0x90}, tr)
}

func TestResolveErrors(t *testing.T) {
	images := testImages()

	_, err := Resolve(images, "mtxex.dll", pattern.MustParse("B8 4D 5A 00 01"))
	require.ErrorIs(t, err, ErrPatternNotFound)

	_, err = Resolve(images, "missing.dll", pattern.MustParse("B8"))
	require.ErrorIs(t, err, module.ErrImageNotFound)

	_, err = Resolve(images, "mtxex.dll", pattern.Pattern{})
	require.ErrorIs(t, err, pattern.ErrEmpty)
}

func TestParseArgs(t *testing.T) {
	testcases := []struct {
		name    string
		args    []string
		module  string
		pattern string
		err     bool
	}{
		{name: "hex", args: []string{"mtxex.dll", "0xB8", "0x4D"}, module: "mtxex.dll", pattern: "B8 4D"},
		{name: "other bases", args: []string{"a.so", "184", "0o115", "0b0101_1010"}, module: "a.so", pattern: "B8 4D 5A"},
		{name: "wildcards", args: []string{"a.so", "_", "0xE9", "?", "??"}, module: "a.so", pattern: "? E9 ? ?"},
		{name: "no tokens", args: []string{"a.so"}, err: true},
		{name: "no module", args: nil, err: true},
		{name: "empty module", args: []string{"", "0x90"}, err: true},
		{name: "too large", args: []string{"a.so", "0x100"}, err: true},
		{name: "negative", args: []string{"a.so", "-1"}, err: true},
		{name: "garbage", args: []string{"a.so", "B8"}, err: true},
	}
	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			name, p, err := ParseArgs(tc.args)
			if tc.err {
				require.ErrorIs(t, err, ErrMalformedArgs)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.module, name)
			assert.Equal(t, tc.pattern, p.String())
		})
	}
}

const testManifest = `
package: offsets
signatures:
  - name: MZHeader
    module: mtxex.dll
    pattern: [0xB8, 0x4D, _, 0x00]
  - name: SaveRbx
    module: other.dll
    pattern: [0x48, 0x89, 0x5C]
`

func TestReadManifest(t *testing.T) {
	m, err := ReadManifest(strings.NewReader(testManifest))
	require.NoError(t, err)
	assert.Equal(t, "offsets", m.Package)
	assert.Equal(t, uint64(HeaderSize), m.HeaderSize)
	assert.Equal(t, module.DefaultConfig(), m.Modules)
	require.Len(t, m.Signatures, 2)
	assert.Equal(t, Entry{Name: "MZHeader", Module: "mtxex.dll", Pattern: []string{"0xB8", "0x4D", "_", "0x00"}}, m.Signatures[0])

	m, err = ReadManifest(strings.NewReader(testManifest + "header_size: 0x400\n"))
	require.NoError(t, err)
	assert.Equal(t, uint64(0x400), m.HeaderSize)
}

func TestReadManifestInvalid(t *testing.T) {
	_, err := ReadManifest(strings.NewReader("package: offsets\nunknown: 1\n"))
	require.Error(t, err)

	_, err = ReadManifest(strings.NewReader(`
package: 1offsets
signatures:
  - name: lower
    module: mtxex.dll
    pattern: [0xB8]
  - name: Dup
    module: ""
    pattern: []
  - name: Dup
    module: mtxex.dll
    pattern: [0x1FF]
`))
	require.Error(t, err)
	var merr *multierror.Error
	require.ErrorAs(t, err, &merr)
	// package, lower, empty module, empty pattern, duplicate, bad byte
	require.Len(t, merr.Errors, 6)
}

func TestGenerate(t *testing.T) {
	m, err := ReadManifest(strings.NewReader(testManifest))
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, Generate(context.Background(), testImages(), m, &out))

	src := out.String()
	assert.True(t, strings.HasPrefix(src, "// Code generated by sigc. DO NOT EDIT.\n"))
	assert.Regexp(t, `MZHeader\s+= `+regexp.QuoteMeta(`signature.Triple{Module: "mtxex.dll", Offset: 0x1100, Sanity: 0xb8}`), src)
	assert.Regexp(t, `SaveRbx\s+= `+regexp.QuoteMeta(`signature.Triple{Module: "other.dll", Offset: 0xc10, Sanity: 0x48}`), src)
	assert.Contains(t, src, "// MZHeader matches B8 4D ? 00 in mtxex.dll.")

	f, err := parser.ParseFile(token.NewFileSet(), "sigs_gen.go", src, parser.ParseComments)
	require.NoError(t, err)
	assert.Equal(t, "offsets", f.Name.Name)
}

func TestGenerateFailureWritesNothing(t *testing.T) {
	m, err := ReadManifest(strings.NewReader(testManifest + `
  - name: Missing
    module: mtxex.dll
    pattern: [0xDE, 0xAD, 0xBE, 0xEF]
`))
	require.NoError(t, err)

	var out bytes.Buffer
	err = Generate(context.Background(), testImages(), m, &out)
	require.ErrorIs(t, err, ErrPatternNotFound)
	require.Contains(t, err.Error(), "Missing")
	require.Zero(t, out.Len())
}

func TestGenerateCanceled(t *testing.T) {
	m, err := ReadManifest(strings.NewReader(testManifest))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var out bytes.Buffer
	require.ErrorIs(t, Generate(ctx, testImages(), m, &out), context.Canceled)
	require.Zero(t, out.Len())
}

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sigs_gen.go")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0o644))

	require.NoError(t, WriteFile(path, []byte("new")))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "new", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	require.Error(t, WriteFile(filepath.Join(dir, "missing", "sigs_gen.go"), []byte("x")))
}
