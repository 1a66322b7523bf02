package gen

import (
	"fmt"
	"go/token"
	"io"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/unknowntrojan/signature/pkg/module"
)

// Manifest lists the signatures resolved by one generate run.
//
//	package: offsets
//	header_size: 0xC00
//	signatures:
//	  - name: MZHeader
//	    module: mtxex.dll
//	    pattern: [0xB8, 0x4D, _, 0x00]
type Manifest struct {
	// Package is the package clause of the generated file.
	Package string `yaml:"package"`
	// HeaderSize is added to every offset found in an image.
	HeaderSize uint64 `yaml:"header_size"`
	// Modules configures where module images are looked up.
	Modules    module.Config `yaml:"modules"`
	Signatures []Entry       `yaml:"signatures"`
}

type Entry struct {
	// Name of the generated variable.
	Name   string `yaml:"name"`
	Module string `yaml:"module"`
	// Pattern tokens, see ParseToken.
	Pattern []string `yaml:"pattern"`
}

func DefaultManifest() Manifest {
	return Manifest{
		HeaderSize: HeaderSize,
		Modules:    module.DefaultConfig(),
	}
}

// ReadManifest decodes a YAML manifest on top of the defaults and validates
// it.
func ReadManifest(r io.Reader) (Manifest, error) {
	m := DefaultManifest()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return Manifest{}, errors.Wrap(err, "decode manifest")
	}
	if err := m.Validate(); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

func (m *Manifest) Validate() error {
	var err error
	if !token.IsIdentifier(m.Package) {
		err = multierror.Append(err, fmt.Errorf("invalid package name %q", m.Package))
	}
	if len(m.Signatures) == 0 {
		err = multierror.Append(err, fmt.Errorf("no signatures"))
	}
	if cfgErr := m.Modules.Validate(); cfgErr != nil {
		err = multierror.Append(err, errors.Wrap(cfgErr, "modules"))
	}
	seen := make(map[string]struct{}, len(m.Signatures))
	for i, e := range m.Signatures {
		switch _, dup := seen[e.Name]; {
		case !token.IsIdentifier(e.Name) || !token.IsExported(e.Name):
			err = multierror.Append(err, fmt.Errorf("signatures[%d]: %q is not an exported identifier", i, e.Name))
		case dup:
			err = multierror.Append(err, fmt.Errorf("signatures[%d]: duplicate name %s", i, e.Name))
		}
		seen[e.Name] = struct{}{}
		if e.Module == "" {
			err = multierror.Append(err, fmt.Errorf("signatures[%d]: module is required", i))
		}
		if _, perr := ParseTokens(e.Pattern); perr != nil {
			err = multierror.Append(err, fmt.Errorf("signatures[%d]: %w", i, perr))
		}
	}
	return err
}
