package protection

// Feature is a single optional protection behaviour.
type Feature uint8

const (
	FeatureAdaptiveContent Feature = 1 << iota
	FeatureAIDetection
	FeatureJSObfuscation
)

const allFeatures = FeatureSet(FeatureAdaptiveContent | FeatureAIDetection | FeatureJSObfuscation)

var featureNames = []struct {
	feature Feature
	name    string
}{
	{FeatureAdaptiveContent, "adaptive-content"},
	{FeatureAIDetection, "ai-detection"},
	{FeatureJSObfuscation, "js-obfuscation"},
}

// ParseFeature maps a persisted flag name to its Feature.
func ParseFeature(name string) (Feature, bool) {
	for _, f := range featureNames {
		if f.name == name {
			return f.feature, true
		}
	}
	return 0, false
}

func (f Feature) String() string {
	for _, n := range featureNames {
		if n.feature == f {
			return n.name
		}
	}
	return "unknown"
}

// FeatureSet is a set of Feature flags.
type FeatureSet uint8

// NewFeatureSet builds a set from the given features.
func NewFeatureSet(features ...Feature) FeatureSet {
	var s FeatureSet
	for _, f := range features {
		s = s.With(f)
	}
	return s
}

func (s FeatureSet) Has(f Feature) bool {
	return s&FeatureSet(f) != 0
}

func (s FeatureSet) With(f Feature) FeatureSet {
	return s | FeatureSet(f)
}

// Names lists the set in canonical order; never nil so it encodes as [].
func (s FeatureSet) Names() []string {
	names := make([]string, 0, len(featureNames))
	for _, f := range featureNames {
		if s.Has(f.feature) {
			names = append(names, f.name)
		}
	}
	return names
}
