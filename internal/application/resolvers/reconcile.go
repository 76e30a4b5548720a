package resolvers

import "github.com/aescanero/varflow/pkg/domain"

// Reconcile picks the new selection from options given the previously
// selected values. Multi-select keeps every surviving old value in option
// order; single-select keeps the first old value that survives. When nothing
// survives the select-all policy decides.
func Reconcile(options []domain.Option, old []string, multi bool, policy domain.SelectAllPolicy) domain.Value {
	if multi {
		return domain.Value{Items: reconcileMulti(options, old, policy)}
	}

	if v, ok := reconcileSingle(options, old, policy); ok {
		return domain.ScalarValue(v)
	}
	return domain.Value{}
}

func reconcileMulti(options []domain.Option, old []string, policy domain.SelectAllPolicy) []string {
	if kept := intersect(options, old); len(kept) > 0 {
		return kept
	}

	switch policy.Mode {
	case domain.SelectAll:
		all := make([]string, 0, len(options))
		for _, o := range options {
			all = append(all, o.Value)
		}
		return all
	case domain.SelectCustom:
		return intersect(options, policy.Custom)
	default:
		if len(options) == 0 {
			return []string{}
		}
		return []string{options[0].Value}
	}
}

func reconcileSingle(options []domain.Option, old []string, policy domain.SelectAllPolicy) (string, bool) {
	if len(options) == 0 {
		return "", false
	}

	present := make(map[string]bool, len(options))
	for _, o := range options {
		present[o.Value] = true
	}

	for _, v := range old {
		if present[v] {
			return v, true
		}
	}

	if policy.Mode == domain.SelectCustom {
		for _, v := range policy.Custom {
			if present[v] {
				return v, true
			}
		}
	}

	return options[0].Value, true
}

// intersect returns the option values contained in values, in option order.
func intersect(options []domain.Option, values []string) []string {
	wanted := make(map[string]bool, len(values))
	for _, v := range values {
		wanted[v] = true
	}

	out := []string{}
	for _, o := range options {
		if wanted[o.Value] {
			out = append(out, o.Value)
			// Duplicate option values are selected once.
			delete(wanted, o.Value)
		}
	}
	return out
}
