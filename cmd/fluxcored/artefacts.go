package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/fluxcore/fluxcore/pkg/binding"
	"github.com/fluxcore/fluxcore/pkg/codec"
	"github.com/fluxcore/fluxcore/pkg/pipeline"
	"github.com/fluxcore/fluxcore/pkg/ramp"
	"github.com/fluxcore/fluxcore/pkg/registry"
	"github.com/fluxcore/fluxcore/pkg/script"
	"github.com/fluxcore/fluxcore/pkg/url"
	"gopkg.in/yaml.v3"
)

// yamlPipeline is one "pipelines:" entry in an artefacts file.
type yamlPipeline struct {
	URL              string   `yaml:"url"`
	Parser           string   `yaml:"parser"`
	Classifier       string   `yaml:"classifier"`
	ClassifierClass  string   `yaml:"classifier_class"`
	Grouping         string   `yaml:"grouping"`
	Limiting         string   `yaml:"limiting"`
}

// yamlRamp is one "onramps:"/"offramps:" entry.
type yamlRamp struct {
	URL    string         `yaml:"url"`
	Type   string         `yaml:"type"`
	Peer   string         `yaml:"peer"`
	Config map[string]any `yaml:"config"`
	Codec  string         `yaml:"codec"`
	Pre    []string       `yaml:"pre"`
	Post   []string       `yaml:"post"`
}

// yamlLink is one "links:" entry within a binding.
type yamlLink struct {
	Src string   `yaml:"src"`
	Dst []string `yaml:"dst"`
}

// yamlBinding is one "bindings:" entry.
type yamlBinding struct {
	URL     string            `yaml:"url"`
	Links   []yamlLink        `yaml:"links"`
	Mapping map[string]string `yaml:"mapping"`
}

// artefactsDoc is the top-level shape of an artefacts YAML file, matching
// spec.md §6's artefact/binding declaration model.
type artefactsDoc struct {
	Pipelines []yamlPipeline `yaml:"pipelines"`
	OnRamps   []yamlRamp     `yaml:"onramps"`
	OffRamps  []yamlRamp     `yaml:"offramps"`
	Bindings  []yamlBinding  `yaml:"bindings"`
}

func loadArtefactsFile(path string) (*artefactsDoc, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("fluxcored: read artefacts file: %w", err)
	}
	var doc artefactsDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("fluxcored: parse artefacts file: %w", err)
	}
	return &doc, nil
}

func decodeYAMLConfig(data []byte) (ramp.Config, error) {
	var cfg ramp.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("fluxcored: parse ramp config: %w", err)
	}
	return cfg, nil
}

// loadYAMLConfig decodes path (if non-empty) as a YAML map; an empty path
// yields an empty, non-nil config so ramp.Config's accessors see defaults.
func loadYAMLConfig(path string) (ramp.Config, error) {
	if path == "" {
		return ramp.Config{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("fluxcored: read ramp config: %w", err)
	}
	return decodeYAMLConfig(data)
}

// boundBinding pairs a parsed binding.Decl with its substitution mapping,
// ready for binding.Resolve.
type boundBinding struct {
	url     string
	decl    binding.Decl
	mapping map[string]string
}

func (d *artefactsDoc) bindingDecls() []boundBinding {
	out := make([]boundBinding, 0, len(d.Bindings))
	for _, b := range d.Bindings {
		var links []binding.Link
		for _, l := range b.Links {
			src, err := url.Parse(l.Src)
			if err != nil {
				continue
			}
			var dsts []url.TremorURL
			for _, ds := range l.Dst {
				d, err := url.Parse(ds)
				if err != nil {
					continue
				}
				dsts = append(dsts, d)
			}
			links = append(links, binding.Link{Src: src, Dst: dsts})
		}
		out = append(out, boundBinding{url: b.URL, decl: binding.Decl{Links: links}, mapping: b.Mapping})
	}
	return out
}

// registryEnv bundles the live registry state built from an artefacts
// document: a Repository of published declarations, a Registry of
// spawners, and a binding Resolver to drive Link/Unlink over it.
type registryEnv struct {
	repo     *registry.Repository
	reg      *registry.Registry
	resolver *binding.Resolver
}

// buildRegistryEnv publishes every declared pipeline/on-ramp/off-ramp from
// doc into a fresh Repository, wires up a Registry with the concrete
// spawners for each resource type, and returns a Resolver ready to Link
// the document's bindings.
func buildRegistryEnv(doc *artefactsDoc, log *slog.Logger, builtins *script.Registry, codecs *codec.Registry) (*registryEnv, error) {
	repo := registry.NewRepository()

	for _, pd := range doc.Pipelines {
		u, err := url.Parse(pd.URL)
		if err != nil {
			return nil, fmt.Errorf("fluxcored: pipeline url %q: %w", pd.URL, err)
		}
		decl := pipeline.Decl{
			Parser:          pd.Parser,
			ClassifierKind:  pd.Classifier,
			ClassifierClass: pd.ClassifierClass,
			GrouperKind:     pd.Grouping,
			LimiterKind:     pd.Limiting,
		}
		if err := repo.PublishArtefact(u, decl); err != nil {
			return nil, fmt.Errorf("fluxcored: publish pipeline %s: %w", u, err)
		}
	}
	for _, od := range doc.OnRamps {
		u, err := url.Parse(od.URL)
		if err != nil {
			return nil, fmt.Errorf("fluxcored: onramp url %q: %w", od.URL, err)
		}
		decl := ramp.OnRampDecl{BindingType: od.Type, Peer: od.Peer, Config: ramp.Config(od.Config), Codec: od.Codec, Pre: od.Pre}
		if err := repo.PublishArtefact(u, decl); err != nil {
			return nil, fmt.Errorf("fluxcored: publish onramp %s: %w", u, err)
		}
	}
	for _, od := range doc.OffRamps {
		u, err := url.Parse(od.URL)
		if err != nil {
			return nil, fmt.Errorf("fluxcored: offramp url %q: %w", od.URL, err)
		}
		decl := ramp.OffRampDecl{BindingType: od.Type, Peer: od.Peer, Config: ramp.Config(od.Config), Codec: od.Codec, Post: od.Post}
		if err := repo.PublishArtefact(u, decl); err != nil {
			return nil, fmt.Errorf("fluxcored: publish offramp %s: %w", u, err)
		}
	}

	spawners := map[url.ResourceType]registry.Spawner{
		url.Pipeline: pipeline.NewSpawner(builtins),
		url.OnRamp:   ramp.NewOnRampSpawner(),
		url.OffRamp:  ramp.NewOffRampSpawner(codecs),
	}
	reg := registry.NewRegistry(repo, spawners)
	resolver := &binding.Resolver{Reg: reg, Warn: func(format string, args ...any) {
		log.Warn(fmt.Sprintf(format, args...))
	}}
	return &registryEnv{repo: repo, reg: reg, resolver: resolver}, nil
}
