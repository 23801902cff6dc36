// Command stormstat runs a buffer aggregation scenario and prints the
// resulting GPU memory allocation and perf counters.
package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/muesli/termenv"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/gogpu/storm"
	"github.com/gogpu/storm/config"
	"github.com/gogpu/storm/diag"
	"github.com/gogpu/storm/drawitems"
	"github.com/gogpu/storm/perflog"
)

// newRegistry builds a registry from cfg. A non-empty backendName and a
// positive workers override the config.
func newRegistry(cfg storm.Config, backendName string, workers int) (*storm.ResourceRegistry, error) {
	opts := cfg.Options()
	if backendName != "" {
		opts = append(opts, storm.WithBackendName(backendName))
	}
	if workers > 0 {
		opts = append(opts, storm.WithWorkers(workers))
	}
	return storm.NewResourceRegistry(opts...)
}

func main() {
	var (
		backendName = flag.String("backend", "", "buffer backend, software or noop (empty keeps the config value)")
		configPath  = flag.String("config", "", "TOML or YAML config file")
		prims       = flag.Int("prims", 16, "number of prims in the scenario")
		workers     = flag.Int("workers", 0, "upload goroutines per commit (0 keeps the config value)")
		verbose     = flag.Bool("v", false, "log debug output to stderr")
	)
	flag.Parse()

	if *verbose {
		storm.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	cfg := storm.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}
	reg, err := newRegistry(cfg, *backendName, *workers)
	if err != nil {
		log.Fatalf("Failed to create registry: %v", err)
	}
	defer reg.Close()

	perflog.Get().Enable()
	mark := diag.NewMark()
	defer mark.Release()

	index := drawitems.NewRenderIndex()
	if err := runScenario(reg, index, *prims); err != nil {
		log.Fatalf("Scenario failed: %v", err)
	}

	cache := drawitems.NewCache(index)
	coll := drawitems.Collection{Name: "geometry", RootPaths: []string{"/"}}
	for frame := 0; frame < 3; frame++ {
		cache.GetDrawItems(coll, []string{drawitems.TagGeometry}, drawitems.DefaultMaterialTag, "hull")
		cache.NextFrame()
	}
	index.SetDisplayStyle(fmt.Sprintf("/world/prim%d", *prims-1), drawitems.DisplayStyle{RefineLevel: 1})
	cache.GetDrawItems(coll, []string{drawitems.TagGeometry}, drawitems.DefaultMaterialTag, "hull")

	out := termenv.NewOutput(os.Stdout)
	p := message.NewPrinter(language.English)

	header(out, "Resource allocation ("+reg.Backend().Name()+")")
	alloc := reg.GetResourceAllocation()
	keys := maps.Keys(alloc)
	slices.Sort(keys)
	for _, k := range keys {
		p.Printf("  %-28s %12d bytes\n", k, alloc[k])
	}

	header(out, "Buffer arrays")
	for _, s := range reg.Stats() {
		fmt.Printf("  %s\n", s)
	}

	header(out, "Instances")
	primvar, topology := reg.InstanceStats()
	fmt.Printf("  primvar:  %s\n  topology: %s\n", primvar, topology)

	header(out, "Draw items")
	fmt.Printf("  %s\n", cache.Stats())

	header(out, "Perf counters")
	for _, line := range strings.Split(strings.TrimSpace(perflog.Get().String()), "\n") {
		fmt.Printf("  %s\n", line)
	}

	if !mark.IsClean() {
		header(out, "Diagnostics")
		for _, d := range mark.Diagnostics() {
			fmt.Printf("  %s\n", out.String(d.String()).Foreground(out.Color("3")))
		}
	}
}

func header(out *termenv.Output, title string) {
	fmt.Println(out.String(title).Bold().Foreground(out.Color("4")))
}

// runScenario builds prims with shared topology, migrates their primvar
// ranges, drops half of them and compacts.
func runScenario(reg *storm.ResourceRegistry, index *drawitems.RenderIndex, n int) error {
	primvarSpecs := []storm.BufferSpec{
		storm.NewBufferSpec("points", storm.Float32, 3),
		storm.NewBufferSpec("normals", storm.Float32, 3),
	}
	indexSpecs := []storm.BufferSpec{storm.NewBufferSpec("indices", storm.Int32, 3)}
	constantSpecs := []storm.BufferSpec{
		storm.NewBufferSpec("transform", storm.Float32, 16),
		storm.NewBufferSpec("displayColor", storm.Float32, 3),
	}

	quad := []float32{0, 0, 0, 1, 0, 0, 1, 1, 0, 0, 1, 0}
	up := []float32{0, 0, 1, 0, 0, 1, 0, 0, 1, 0, 0, 1}
	tris := []int32{0, 1, 2, 0, 2, 3}
	identity := []float32{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1}

	indices := storm.NewSource("indices", tris, 3)
	topologyID := storm.ComputeSourcesHash([]storm.BufferSource{indices})

	ranges := make([]storm.Range, n)
	containers := make([]*storm.RangeContainer, n)
	var instances []storm.RangeInstance
	for i := 0; i < n; i++ {
		rg, err := reg.AllocateNonUniformBufferArrayRange("primvar", primvarSpecs, storm.UsageVertex)
		if err != nil {
			return err
		}
		reg.AddSources(rg,
			storm.NewSource("points", quad, 3),
			storm.NewSource("normals", up, 3))
		ranges[i] = rg

		inst := reg.RegisterTopologyRange(topologyID)
		if inst.IsFirstInstance() {
			topo, err := reg.AllocateNonUniformImmutableBufferArrayRange("topology", indexSpecs, storm.UsageIndex)
			if err != nil {
				return err
			}
			reg.AddSource(topo, indices)
			inst.SetValue(topo)
		}
		instances = append(instances, inst)

		constant, err := reg.AllocateShaderStorageBufferArrayRange("constantPrimvar", constantSpecs, storm.UsageStorage)
		if err != nil {
			return err
		}
		reg.AddSources(constant,
			storm.NewSource("transform", identity, 16),
			storm.NewSource("displayColor", []float32{0.2, 0.4, float32(i) / float32(n)}, 3))

		container := storm.NewRangeContainer(2)
		container.Set(0, inst.Value())
		container.Set(1, rg)
		container.Set(2, constant)
		containers[i] = container
		index.InsertRprim(drawitems.Rprim{
			ID:     fmt.Sprintf("/world/prim%d", i),
			Reprs:  map[string]int{"hull": 1},
			Ranges: container,
		})
	}
	if err := reg.Commit(); err != nil {
		return err
	}

	// Authoring widths on every prim migrates its primvar range.
	widths := []storm.BufferSpec{storm.NewBufferSpec("widths", storm.Float32, 1)}
	for i, rg := range ranges {
		next, err := reg.UpdateNonUniformBufferArrayRange("primvar", rg, widths, nil, storm.UsageVertex)
		if err != nil {
			return err
		}
		reg.AddSource(next, storm.NewSource("widths", []float32{1, 1, 2, 2}, 1))
		ranges[i] = next
		containers[i].Set(1, next)
	}
	if err := reg.Commit(); err != nil {
		return err
	}

	for i := 0; i < n/2; i++ {
		ranges[i].Release()
		instances[i].Release()
		index.RemoveRprim(fmt.Sprintf("/world/prim%d", i))
	}
	reg.GarbageCollect()
	return nil
}
