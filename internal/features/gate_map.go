package features

// GateMapEntry records a concrete surface that a feature flag gates.
type GateMapEntry struct {
	Feature string
	Surface string
	Notes   string
}

// GateMap is the authoritative map of gated surfaces to feature flags.
var GateMap = []GateMapEntry{
	{
		Feature: KitchenEvents.Name,
		Surface: "cmd/engine.go#eventSinks",
		Notes:   "Builds the AMQP and webhook order sinks",
	},
	{
		Feature: MasterMirror.Name,
		Surface: "cmd/engine.go#openEngine",
		Notes:   "Sets Options.MirrorMaster",
	},
	{
		Feature: AutoReconcile.Name,
		Surface: "cmd/root.go#PersistentPostRun",
		Notes:   "Reconciles pending records after a mutating command",
	},
}

// Surfaces returns the gated surfaces of feature name.
func Surfaces(name string) []string {
	var out []string
	for _, e := range GateMap {
		if e.Feature == name {
			out = append(out, e.Surface)
		}
	}
	return out
}
