package main

import (
	"github.com/spf13/afero"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/unknowntrojan/signature/pkg/module"
)

type moduleParams struct {
	SearchPaths    []string
	ImageCacheSize int
}

func addModuleParams(cmd *kingpin.CmdClause) *moduleParams {
	params := &moduleParams{}
	cmd.Flag("search-path", "Directory searched for module images referenced by name. Repeat for more directories, defaults to the system library directories.").Short('L').StringsVar(&params.SearchPaths)
	cmd.Flag("image-cache-size", "Number of module images kept in memory, 0 keeps the configured size.").Default("0").IntVar(&params.ImageCacheSize)
	return params
}

// apply overrides cfg with the flags that were set.
func (p *moduleParams) apply(cfg *module.Config) {
	if len(p.SearchPaths) > 0 {
		cfg.SearchPaths = p.SearchPaths
	}
	if p.ImageCacheSize > 0 {
		cfg.ImageCacheSize = p.ImageCacheSize
	}
}

func (p *moduleParams) images(cfg module.Config) (*module.Images, error) {
	p.apply(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return module.NewImages(logger, afero.NewOsFs(), cfg, nil)
}

type resolveParams struct {
	*moduleParams
	Module     string
	Tokens     []string
	HeaderSize uint64
}

func addResolveParams(cmd *kingpin.CmdClause) *resolveParams {
	params := &resolveParams{moduleParams: addModuleParams(cmd)}
	cmd.Flag("header-size", "Bytes between the module base and the start of its image.").Default("0xC00").Uint64Var(&params.HeaderSize)
	cmd.Arg("module", "Module name or path to its image.").Required().StringVar(&params.Module)
	cmd.Arg("pattern", "Pattern bytes as Go integer literals, _ ? or ?? for wildcards.").Required().StringsVar(&params.Tokens)
	return params
}

type generateParams struct {
	*moduleParams
	Manifest string
	Output   string
}

func addGenerateParams(cmd *kingpin.CmdClause) *generateParams {
	params := &generateParams{moduleParams: addModuleParams(cmd)}
	cmd.Flag("config", "Signature manifest.").Short('c').Required().ExistingFileVar(&params.Manifest)
	cmd.Flag("output", "Generated Go file.").Short('o').Required().StringVar(&params.Output)
	return params
}
