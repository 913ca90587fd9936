package proxy

// ExtensionKey is the field name every negotiated extension value lives
// under, on both params and result objects.
const ExtensionKey = "_ultra_lean_mcp_proxy"

// GetExtension returns the extension container from a decoded params or
// result object, or nil if absent or malformed.
func GetExtension(obj map[string]any) map[string]any {
	if obj == nil {
		return nil
	}
	raw, ok := obj[ExtensionKey]
	if !ok {
		return nil
	}
	ext, ok := raw.(map[string]any)
	if !ok {
		return nil
	}
	return ext
}

// SetExtension writes ext under the extension key on obj. A nil or
// empty ext is a no-op so that un-negotiated sessions never see the
// field.
func SetExtension(obj map[string]any, ext map[string]any) {
	if obj == nil || len(ext) == 0 {
		return
	}
	obj[ExtensionKey] = ext
}

// mergeInto sets dst[key] = value, creating dst if nil, and returns it. Used to build up the result-side extension container
// incrementally as each engine contributes its own sub-key.
func mergeInto(dst map[string]any, key string, value any) map[string]any {
	if dst == nil {
		dst = make(map[string]any)
	}
	dst[key] = value
	return dst
}
