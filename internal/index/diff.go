package index

// Diff returns the keys only in old (removed) and only in next (added), each
// listed once in first-seen order. Empty keys are ignored.
// Cost is O(len(old)+len(next)).
func Diff(old, next []string) (removed, added []string) {
	oldSet := toSet(old)
	nextSet := toSet(next)

	seen := make(map[string]struct{}, len(old)+len(next))
	for _, k := range old {
		if _, ok := nextSet[k]; ok || k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		removed = append(removed, k)
	}
	for _, k := range next {
		if _, ok := oldSet[k]; ok || k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		added = append(added, k)
	}
	return removed, added
}

func toSet(keys []string) map[string]struct{} {
	s := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		s[k] = struct{}{}
	}
	return s
}
