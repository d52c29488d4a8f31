// ABOUTME: Login stage kinds and the flow descriptors built from them
// ABOUTME: Flow completion is an exact ordered match, not a prefix or subset

package id

// LoginType enumerates the supported authentication stage kinds. The values
// are the stable wire identifiers.
type LoginType string

const (
	// LoginTypePassword is the password stage.
	LoginTypePassword LoginType = "m.login.password"
	// LoginTypeToken is the one-time-token stage.
	LoginTypeToken LoginType = "m.login.token"
)

// Valid reports whether t is a known stage kind.
func (t LoginType) Valid() bool {
	switch t {
	case LoginTypePassword, LoginTypeToken:
		return true
	}
	return false
}

// LoginFlow is a single acceptable stage for simple, single-step login.
type LoginFlow struct {
	Type LoginType `json:"type"`
}

// InteractiveFlow is one acceptable ordered path through multi-stage
// authentication. Policy configuration holds a set of these.
type InteractiveFlow struct {
	Stages []LoginType `json:"stages"`
}

// StagesEqual reports whether two stage sequences are identical in content
// and order.
func StagesEqual(a, b []LoginType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// FlowsContain reports whether stages exactly matches one of the configured
// flows. A prefix of a flow, or a flow plus extra stages, does not count.
func FlowsContain(flows []InteractiveFlow, stages []LoginType) bool {
	for _, f := range flows {
		if StagesEqual(f.Stages, stages) {
			return true
		}
	}
	return false
}

// StagesContain reports whether the sequence already includes the given
// stage kind.
func StagesContain(stages []LoginType, t LoginType) bool {
	for _, s := range stages {
		if s == t {
			return true
		}
	}
	return false
}
