package sapling

// Lifecycle controls how instances of a registration are shared.
type Lifecycle int

const (
	// Singleton instances are built once per root [Provider] and shared by
	// every scope derived from it.
	Singleton Lifecycle = iota

	// Scoped instances are built once per [Scope].
	Scoped

	// Transient instances are built on every resolution and owned by the
	// resolving provider until released.
	Transient
)

// String returns the human-readable name of the lifecycle.
func (l Lifecycle) String() string {
	switch l {
	case Singleton:
		return "singleton"
	case Scoped:
		return "scoped"
	case Transient:
		return "transient"
	default:
		return "unknown"
	}
}

func (l Lifecycle) valid() bool {
	return l >= Singleton && l <= Transient
}

// accepts reports whether a service with lifecycle l may depend on a service
// with lifecycle child.
func (l Lifecycle) accepts(child Lifecycle) bool {
	switch l {
	case Singleton:
		return child == Singleton
	case Scoped:
		return child != Transient
	default:
		return true
	}
}
