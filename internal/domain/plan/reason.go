package plan

// ReasonKind classifies why a package is bumped.
type ReasonKind string

const (
	ReasonFeature    ReasonKind = "feature"
	ReasonFix        ReasonKind = "fix"
	ReasonOther      ReasonKind = "other"
	ReasonBreaking   ReasonKind = "breaking"
	ReasonDependency ReasonKind = "dependency"
	ReasonManual     ReasonKind = "manual"
	ReasonCycle      ReasonKind = "cycle"
)

// BumpReason records one cause of a bump. Detail is the change description
// for change reasons and the causing package for dependency and cycle reasons.
type BumpReason struct {
	Kind   ReasonKind `json:"kind"`
	Detail string     `json:"detail,omitempty"`
}

// Feature is a feature change.
func Feature(desc string) BumpReason { return BumpReason{Kind: ReasonFeature, Detail: desc} }

// Fix is a bug fix.
func Fix(desc string) BumpReason { return BumpReason{Kind: ReasonFix, Detail: desc} }

// Other is any other change.
func Other(desc string) BumpReason { return BumpReason{Kind: ReasonOther, Detail: desc} }

// Breaking is a breaking change.
func Breaking(desc string) BumpReason { return BumpReason{Kind: ReasonBreaking, Detail: desc} }

// DependencyUpdate is a bump caused by an internal dependency.
func DependencyUpdate(cause string) BumpReason {
	return BumpReason{Kind: ReasonDependency, Detail: cause}
}

// ManualTarget is an explicitly requested version.
func ManualTarget() BumpReason { return BumpReason{Kind: ReasonManual} }

// CycleHarmonization is a bump raised to match a cycle peer.
func CycleHarmonization(peer string) BumpReason {
	return BumpReason{Kind: ReasonCycle, Detail: peer}
}

// IsDirect reports whether the reason comes from the package's own changes.
func (r BumpReason) IsDirect() bool {
	switch r.Kind {
	case ReasonFeature, ReasonFix, ReasonOther, ReasonBreaking:
		return true
	}
	return false
}

// String renders "kind(detail)".
func (r BumpReason) String() string {
	if r.Detail == "" {
		return string(r.Kind)
	}
	return string(r.Kind) + "(" + r.Detail + ")"
}
