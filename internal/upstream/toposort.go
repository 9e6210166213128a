package upstream

// topoSort returns a build order over specs such that every hybrid's
// children are built before the hybrid itself, or a *ConfigError with
// Code CyclicUpstream if the dependency graph has a cycle — detected at
// registry build time, never at query time, per §4.5/§4.6/§9.
func topoSort(specs map[string]Spec) ([]string, error) {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)

	state := make(map[string]int, len(specs))
	order := make([]string, 0, len(specs))

	var visit func(tag string) error
	visit = func(tag string) error {
		switch state[tag] {
		case done:
			return nil
		case visiting:
			return &ConfigError{Code: CyclicUpstream, Tag: tag}
		}

		state[tag] = visiting

		if spec, ok := specs[tag]; ok && spec.Hybrid != nil {
			for _, child := range spec.Hybrid.Children {
				if _, ok := specs[child]; !ok {
					return &ConfigError{Code: UnknownTag, Tag: child}
				}
				if err := visit(child); err != nil {
					return err
				}
			}
		}

		state[tag] = done
		order = append(order, tag)
		return nil
	}

	for tag := range specs {
		if err := visit(tag); err != nil {
			return nil, err
		}
	}

	return order, nil
}
