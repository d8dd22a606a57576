package filters

// Params carries the decode parameters that accompany a filter, taken
// from a stream's DecodeParms dictionary. Callers flatten the dictionary
// into plain Go values before handing it over, so the package stays
// independent of any particular object model. Common keys are Predictor,
// Columns, Colors, BitsPerComponent, EarlyChange, K, Rows and BlackIs1.
type Params map[string]interface{}

// getIntParam extracts an integer parameter, returning def when the key
// is missing or holds a value that is not numeric.
func getIntParam(params Params, key string, def int) int {
	if params == nil {
		return def
	}

	obj, ok := params[key]
	if !ok {
		return def
	}

	switch v := obj.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case int32:
		return int(v)
	case float64:
		return int(v)
	default:
		return def
	}
}

// getBoolParam extracts a boolean parameter, returning def when the key
// is missing or holds a value of another type.
func getBoolParam(params Params, key string, def bool) bool {
	if params == nil {
		return def
	}

	obj, ok := params[key]
	if !ok {
		return def
	}

	if v, ok := obj.(bool); ok {
		return v
	}
	return def
}
