package spanhost

import "github.com/buildbarn/bb-disttrace/pkg/tracectx/api"

// Ambient returns the pkg/tracectx/api.AmbientLookup backed by this
// package's CurrentSpan and CurrentDispatcher, for application code
// that wants to call api.RegisterDistTracingRoot/CurrentDistTraceCtx
// without repeating the wiring.
func Ambient() api.AmbientLookup {
	return api.AmbientLookup{
		CurrentSpan:       CurrentSpan,
		CurrentDispatcher: CurrentDispatcher,
	}
}
