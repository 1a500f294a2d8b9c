package binding

import (
	"context"
	"testing"

	"github.com/fluxcore/fluxcore/pkg/registry"
	"github.com/fluxcore/fluxcore/pkg/url"
)

type fakeArtefact struct{}

func (fakeArtefact) Equal(other registry.Artefact) bool { _, ok := other.(fakeArtefact); return ok }

type fakeAddress struct {
	name       string
	linkCount  int
	linksAfter int
}

func (a *fakeAddress) Link(_ context.Context, _ map[url.TremorURL][]url.TremorURL) error {
	a.linkCount++
	return nil
}
func (a *fakeAddress) Unlink(_ context.Context, _ map[url.TremorURL][]url.TremorURL) (bool, error) {
	a.linksAfter--
	return a.linksAfter <= 0, nil
}

func mustParse(t *testing.T, s string) url.TremorURL {
	t.Helper()
	u, err := url.Parse(s)
	if err != nil {
		t.Fatal(err)
	}
	return u
}

func setup(t *testing.T) (*registry.Registry, *registry.Repository) {
	repo := registry.NewRepository()
	for _, p := range []string{
		"tremor://h/onramp/src",
		"tremor://h/pipeline/p",
		"tremor://h/offramp/dst",
	} {
		u := mustParse(t, p)
		repo.PublishArtefact(u, fakeArtefact{})
	}
	reg := registry.NewRegistry(repo, map[url.ResourceType]registry.Spawner{
		url.OnRamp:   func(ctx context.Context, decl registry.Artefact, u url.TremorURL) (registry.Address, error) { return &fakeAddress{name: u.String(), linksAfter: 1}, nil },
		url.Pipeline: func(ctx context.Context, decl registry.Artefact, u url.TremorURL) (registry.Address, error) { return &fakeAddress{name: u.String(), linksAfter: 1}, nil },
		url.OffRamp:  func(ctx context.Context, decl registry.Artefact, u url.TremorURL) (registry.Address, error) { return &fakeAddress{name: u.String(), linksAfter: 1}, nil },
	})
	return reg, repo
}

func TestResolvePlaceholderSubstitution(t *testing.T) {
	decl := Decl{Links: []Link{
		{Src: mustParse(t, "tremor://h/onramp/src/%7Binst%7D/out"), Dst: []url.TremorURL{mustParse(t, "tremor://h/pipeline/p/%7Binst%7D/in")}},
	}}
	resolved := Resolve(decl, map[string]string{"inst": "01"})
	if resolved[0].Src.Instance != "01" {
		t.Fatalf("expected instance substituted to 01, got %q", resolved[0].Src.Instance)
	}
	if resolved[0].Dst[0].Instance != "01" {
		t.Fatalf("expected dst instance substituted to 01, got %q", resolved[0].Dst[0].Instance)
	}
}

func TestLinkEnsuresAndOrdersPipelineFirst(t *testing.T) {
	reg, _ := setup(t)
	r := &Resolver{Reg: reg}
	links := []ResolvedLink{
		{Src: mustParse(t, "tremor://h/onramp/src/01/out"), Dst: []url.TremorURL{mustParse(t, "tremor://h/pipeline/p/01/in")}},
		{Src: mustParse(t, "tremor://h/pipeline/p/01/out"), Dst: []url.TremorURL{mustParse(t, "tremor://h/offramp/dst/01/in")}},
	}
	if err := r.Link(context.Background(), links); err != nil {
		t.Fatal(err)
	}
	if _, ok := reg.Lookup(mustParse(t, "tremor://h/pipeline/p/01")); !ok {
		t.Fatalf("expected pipeline instance ensured")
	}
	if _, ok := reg.Lookup(mustParse(t, "tremor://h/onramp/src/01")); !ok {
		t.Fatalf("expected onramp instance ensured")
	}
}

func TestUnlinkDedupsBySourceInstance(t *testing.T) {
	reg, _ := setup(t)
	r := &Resolver{Reg: reg}
	links := []ResolvedLink{
		{Src: mustParse(t, "tremor://h/pipeline/p/01/out1"), Dst: []url.TremorURL{mustParse(t, "tremor://h/offramp/dst/01/in")}},
		{Src: mustParse(t, "tremor://h/pipeline/p/01/out2"), Dst: []url.TremorURL{mustParse(t, "tremor://h/offramp/dst/01/in")}},
	}
	if err := r.Link(context.Background(), links); err != nil {
		t.Fatal(err)
	}
	if err := r.Unlink(context.Background(), links); err != nil {
		t.Fatal(err)
	}
	if _, ok := reg.Lookup(mustParse(t, "tremor://h/pipeline/p/01")); ok {
		t.Fatalf("expected pipeline instance removed after single dedup'd unlink emptied it")
	}
}

func TestWarnerCalledOnPipelineToPipelineLink(t *testing.T) {
	reg, repo := setup(t)
	repo.PublishArtefact(mustParse(t, "tremor://h/pipeline/p2"), fakeArtefact{})
	var warned bool
	r := &Resolver{Reg: reg, Warn: func(format string, args ...any) { warned = true }}
	links := []ResolvedLink{
		{Src: mustParse(t, "tremor://h/pipeline/p/01/out"), Dst: []url.TremorURL{mustParse(t, "tremor://h/pipeline/p2/01/in")}},
	}
	if err := r.Link(context.Background(), links); err != nil {
		t.Fatal(err)
	}
	if !warned {
		t.Fatalf("expected warning on pipeline->pipeline link")
	}
}
