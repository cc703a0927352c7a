package attrs

// generateFullpath is a placeholder function-attribute: real path
// resolution requires walking the names table up to the root, which the
// attrs package cannot do on its own (it has no database handle). listmgr
// neither stores fullpath nor sets it on fetch, so on an AttrSet read
// back from the store this fallback is what Get returns: the entry's
// bare name, not a path from the root.
func generateFullpath(a *AttrSet) (Value, bool) {
	name, ok := a.Get(ATTR_name)
	if !ok {
		return Value{}, false
	}
	return StrValue(name.Str), true
}

// generateInvalid reports whether mode looks like a recognizable POSIX
// file type; entries whose Lustre metadata got corrupted surface an
// unrecognized mode bit pattern, and are flagged invalid rather than
// crashing downstream consumers.
func generateInvalid(a *AttrSet) (Value, bool) {
	mode, ok := a.Get(ATTR_mode)
	if !ok {
		return Value{}, false
	}
	const modeTypeMask = 0170000
	switch mode.Uint & modeTypeMask {
	case 0100000, 0040000, 0120000, 0020000, 0060000, 0010000, 0140000:
		return BoolValue(false), true
	default:
		return BoolValue(true), true
	}
}
