// Command fluxcored runs the fluxcore event-processing runtime: either a
// single on-ramp -> pipeline(s) -> off-ramp/drop-off-ramp chain wired
// directly from CLI flags (original_source/src/main.rs's surface), or a
// multi-artefact topology loaded from a YAML declaration file and wired
// through the artefact registry (C6) and binding resolver (C7).
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/fluxcore/fluxcore/pkg/binding"
	"github.com/fluxcore/fluxcore/pkg/codec"
	"github.com/fluxcore/fluxcore/pkg/metrics"
	"github.com/fluxcore/fluxcore/pkg/pipeline"
	"github.com/fluxcore/fluxcore/pkg/ramp"
	"github.com/fluxcore/fluxcore/pkg/script"
	"github.com/fluxcore/fluxcore/pkg/url"
)

var met = metrics.New()

func main() {
	var (
		onRamp            = flag.String("on-ramp", "stdin", "on-ramp kind: stdin|file|nats")
		onRampConfig      = flag.String("on-ramp-config", "", "on-ramp config YAML file")
		offRamp           = flag.String("off-ramp", "stdout", "off-ramp kind: stdout|null|file|nats|graphsink|vectorsink")
		offRampConfig     = flag.String("off-ramp-config", "", "off-ramp config YAML file")
		dropOffRamp       = flag.String("drop-off-ramp", "null", "drop-off-ramp kind, defaults to null")
		dropOffRampConfig = flag.String("drop-off-ramp-config", "", "drop-off-ramp config YAML file")
		parser            = flag.String("parser", "raw", "parser kind: raw|json")
		classifier        = flag.String("classifier", "constant", "classifier kind: constant|script")
		classifierConfig  = flag.String("classifier-config", "default", "constant classifier class name")
		grouping          = flag.String("grouping", "pass", "grouping kind: pass|drop|bucket")
		limiting          = flag.String("limiting", "pass", "limiting kind: pass|drop|percentile")
		pipelineThreads   = flag.Int("pipeline-threads", 1, "number of parallel pipeline instances")
		metricsPort       = flag.Int("metrics-port", 9898, "HTTP port for the /metrics endpoint")
		artefactsFile     = flag.String("artefacts", "", "path to a YAML artefact/binding declaration file (multi-pipeline mode)")
	)
	flag.Parse()

	log := slog.Default()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	met.ServeAsync(*metricsPort)
	log.Info("metrics listening", "port", *metricsPort)

	if *artefactsFile != "" {
		if err := runArtefacts(ctx, log, *artefactsFile); err != nil {
			log.Error("artefacts run failed", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := runSinglePipeline(ctx, log, singlePipelineFlags{
		onRamp: *onRamp, onRampConfig: *onRampConfig,
		offRamp: *offRamp, offRampConfig: *offRampConfig,
		dropOffRamp: *dropOffRamp, dropOffRampConfig: *dropOffRampConfig,
		parser: *parser, classifier: *classifier, classifierConfig: *classifierConfig,
		grouping: *grouping, limiting: *limiting, pipelineThreads: *pipelineThreads,
	}); err != nil {
		log.Error("worker failed", "error", err)
		os.Exit(1)
	}
}

type singlePipelineFlags struct {
	onRamp, onRampConfig           string
	offRamp, offRampConfig         string
	dropOffRamp, dropOffRampConfig string
	parser, classifier             string
	classifierConfig               string
	grouping, limiting              string
	pipelineThreads                 int
}

func artefactURL(kind url.ResourceType, name string) url.TremorURL {
	return url.TremorURL{Host: "localhost", Type: kind, Artefact: name, Instance: "01"}
}

// runSinglePipeline wires on-ramp -> N pipeline instances -> off-ramp/
// drop-off-ramp directly from flags, matching main.rs's flag-driven
// single-pipeline CLI. Exit code 1 on any worker failing to spawn.
func runSinglePipeline(ctx context.Context, log *slog.Logger, f singlePipelineFlags) error {
	onCfg, err := loadYAMLConfig(f.onRampConfig)
	if err != nil {
		return fmt.Errorf("fluxcored: on-ramp config: %w", err)
	}
	offCfg, err := loadYAMLConfig(f.offRampConfig)
	if err != nil {
		return fmt.Errorf("fluxcored: off-ramp config: %w", err)
	}
	dropCfg, err := loadYAMLConfig(f.dropOffRampConfig)
	if err != nil {
		return fmt.Errorf("fluxcored: drop-off-ramp config: %w", err)
	}

	onSpawner := ramp.NewOnRampSpawner()
	codecs := codec.NewRegistry()
	offSpawner := ramp.NewOffRampSpawner(codecs)

	onAddr, err := onSpawner(ctx, ramp.OnRampDecl{BindingType: f.onRamp, Config: onCfg}, artefactURL(url.OnRamp, "in"))
	if err != nil {
		return fmt.Errorf("fluxcored: spawn on-ramp: %w", err)
	}
	onInst, ok := onAddr.(*ramp.OnRampAddress)
	if !ok {
		return fmt.Errorf("fluxcored: on-ramp spawner returned unexpected address type %T", onAddr)
	}

	offAddr, err := offSpawner(ctx, ramp.OffRampDecl{BindingType: f.offRamp, Config: offCfg}, artefactURL(url.OffRamp, "out"))
	if err != nil {
		return fmt.Errorf("fluxcored: spawn off-ramp: %w", err)
	}
	offInst, ok := offAddr.(*ramp.OffRampAddress)
	if !ok {
		return fmt.Errorf("fluxcored: off-ramp spawner returned unexpected address type %T", offAddr)
	}

	dropAddr, err := offSpawner(ctx, ramp.OffRampDecl{BindingType: f.dropOffRamp, Config: dropCfg}, artefactURL(url.OffRamp, "drop"))
	if err != nil {
		return fmt.Errorf("fluxcored: spawn drop-off-ramp: %w", err)
	}
	dropInst, ok := dropAddr.(*ramp.OffRampAddress)
	if !ok {
		return fmt.Errorf("fluxcored: drop-off-ramp spawner returned unexpected address type %T", dropAddr)
	}

	primaryCh := make(chan []byte, 256)
	dropCh := make(chan []byte, 256)
	go deliverLoop(ctx, log, offInst, primaryCh)
	go deliverLoop(ctx, log, dropInst, dropCh)

	builtins := script.StandardLibrary()
	decl := pipeline.Decl{
		Parser:          f.parser,
		ClassifierKind:  f.classifier,
		ClassifierClass: f.classifierConfig,
		GrouperKind:     f.grouping,
		LimiterKind:     f.limiting,
	}
	spawner := pipeline.NewSpawner(builtins)

	for i := 0; i < f.pipelineThreads; i++ {
		addr, err := spawner(ctx, decl, artefactURL(url.Pipeline, fmt.Sprintf("main-%d", i)))
		if err != nil {
			return fmt.Errorf("fluxcored: spawn pipeline: %w", err)
		}
		inst, ok := addr.(*pipeline.Instance)
		if !ok {
			return fmt.Errorf("fluxcored: pipeline spawner returned unexpected address type %T", addr)
		}
		inst.RegisterDest("off-ramp", false, primaryCh)
		inst.RegisterDest("drop-off-ramp", true, dropCh)
		onInst.RegisterDest(fmt.Sprintf("pipeline-%d", i), inst.In)
	}

	log.Info("fluxcored running", "on_ramp", f.onRamp, "off_ramp", f.offRamp,
		"drop_off_ramp", f.dropOffRamp, "pipeline_threads", f.pipelineThreads)
	<-ctx.Done()
	log.Info("shutting down")
	return nil
}

func deliverLoop(ctx context.Context, log *slog.Logger, addr *ramp.OffRampAddress, ch <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-ch:
			if !ok {
				return
			}
			if err := addr.Deliver(ctx, "in", frame); err != nil {
				log.Warn("off-ramp delivery failed", "error", err)
			}
		}
	}
}

// runArtefacts loads a YAML topology document and drives it through the
// artefact registry (C6) and binding resolver (C7): publish every
// pipeline/on-ramp/off-ramp declaration, then resolve and link each
// binding, which spawns instances on demand as their edges are linked.
func runArtefacts(ctx context.Context, log *slog.Logger, path string) error {
	doc, err := loadArtefactsFile(path)
	if err != nil {
		return err
	}

	codecs := codec.NewRegistry()
	builtins := script.StandardLibrary()
	env, err := buildRegistryEnv(doc, log, builtins, codecs)
	if err != nil {
		return err
	}

	for _, bd := range doc.bindingDecls() {
		if err := env.resolver.Link(ctx, binding.Resolve(bd.decl, bd.mapping)); err != nil {
			return fmt.Errorf("fluxcored: link binding %s: %w", bd.url, err)
		}
	}

	log.Info("fluxcored running (artefacts mode)", "file", path,
		"pipelines", len(doc.Pipelines), "onramps", len(doc.OnRamps), "offramps", len(doc.OffRamps),
		"bindings", len(doc.Bindings))
	<-ctx.Done()
	log.Info("shutting down")
	return nil
}
