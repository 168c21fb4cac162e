package features

import (
	"os"
	"sort"
	"strings"
	"unicode"

	"github.com/marcus/kasir/internal/config"
)

// Feature describes a named feature flag.
type Feature struct {
	Name        string
	Default     bool
	Description string
}

var (
	// KitchenEvents gates publishing order events to the kitchen display
	// exchange and webhook.
	KitchenEvents = Feature{
		Name:        "kitchen_events",
		Default:     false,
		Description: "Publish order events to AMQP and the webhook",
	}

	// MasterMirror gates mirroring menu, profile and other master documents
	// through the remote store.
	MasterMirror = Feature{
		Name:        "master_mirror",
		Default:     true,
		Description: "Mirror master data documents through the remote store",
	}

	// AutoReconcile gates reconciling pending records after CLI mutations.
	AutoReconcile = Feature{
		Name:        "auto_reconcile",
		Default:     true,
		Description: "Push pending records after each mutating command",
	}
)

var allFeatures = []Feature{
	AutoReconcile,
	KitchenEvents,
	MasterMirror,
}

var defaultValues = buildDefaultMap()

func buildDefaultMap() map[string]bool {
	values := make(map[string]bool, len(allFeatures))
	for _, feature := range allFeatures {
		values[feature.Name] = feature.Default
	}
	return values
}

// ListAll returns all known features.
func ListAll() []Feature {
	items := make([]Feature, len(allFeatures))
	copy(items, allFeatures)
	sort.Slice(items, func(i, j int) bool {
		return items[i].Name < items[j].Name
	})
	return items
}

// IsKnownFeature returns true when the feature exists in the registry.
func IsKnownFeature(name string) bool {
	_, ok := defaultValues[normalizeName(name)]
	return ok
}

// IsEnabled resolves a feature using env overrides, then the config file,
// then defaults.
func IsEnabled(dataDir, name string) bool {
	enabled, _ := Resolve(dataDir, name)
	return enabled
}

// Resolve returns the resolved feature state and the source ("env", "config", "default").
func Resolve(dataDir, name string) (bool, string) {
	canonical := normalizeName(name)

	if enabled, ok := resolveEnvOverride(canonical); ok {
		return enabled, "env"
	}

	if dataDir != "" {
		if enabled, ok, err := config.GetFeatureFlag(dataDir, canonical); err == nil && ok {
			return enabled, "config"
		}
	}

	return getDefault(canonical), "default"
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func getDefault(name string) bool {
	if enabled, ok := defaultValues[name]; ok {
		return enabled
	}
	return false
}

func resolveEnvOverride(name string) (bool, bool) {
	featureVar := "KASIR_FEATURE_" + normalizeForEnvKey(name)
	if enabled, ok := parseBoolEnv(featureVar); ok {
		return enabled, true
	}

	if containsFeatureName(os.Getenv("KASIR_DISABLE_FEATURES"), name) {
		return false, true
	}
	if containsFeatureName(os.Getenv("KASIR_ENABLE_FEATURES"), name) {
		return true, true
	}

	return false, false
}

func normalizeForEnvKey(name string) string {
	upper := strings.ToUpper(strings.TrimSpace(name))
	var b strings.Builder
	for _, r := range upper {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			continue
		}
		b.WriteByte('_')
	}
	return b.String()
}

func parseBoolEnv(key string) (bool, bool) {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch value {
	case "1", "true", "on", "yes":
		return true, true
	case "0", "false", "off", "no":
		return false, true
	default:
		return false, false
	}
}

func containsFeatureName(raw, target string) bool {
	if raw == "" {
		return false
	}
	target = normalizeName(target)
	for _, item := range strings.Split(raw, ",") {
		if normalizeName(item) == target {
			return true
		}
	}
	return false
}
