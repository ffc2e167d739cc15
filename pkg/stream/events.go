package stream

// LoadingState describes what a controller is currently waiting on.
//
// Emitted on every transition for UI feedback (spinners, skeletons).
type LoadingState struct {
	// Loading is true while anything below is true.
	Loading bool

	// Metadata is true while the dataset description is being resolved.
	// Controllers are constructed from an already-resolved dataset, so
	// they never raise it; the field is reserved for integrations that
	// open datasets asynchronously and surface one combined state.
	Metadata bool

	// Chunks is true while any visible tile has a fetch in flight.
	Chunks bool
}

func loadingState(metadata, chunks bool) LoadingState {
	return LoadingState{
		Loading:  metadata || chunks,
		Metadata: metadata,
		Chunks:   chunks,
	}
}
