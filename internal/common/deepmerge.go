package common

// DeepMerge merges override into base and returns the result. When both
// sides hold a map under the same key the maps are merged recursively,
// otherwise the override value wins. Inputs are not mutated.
func DeepMerge(base, override map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(base)+len(override))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range override {
		baseMap, baseOK := merged[k].(map[string]interface{})
		overrideMap, overrideOK := v.(map[string]interface{})
		if baseOK && overrideOK {
			merged[k] = DeepMerge(baseMap, overrideMap)
		} else {
			merged[k] = v
		}
	}
	return merged
}
