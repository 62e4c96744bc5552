package handlers

const (
	// Error kinds returned in the "kind" field of error bodies
	kindValidation        = "validation"
	kindTransport         = "transport"
	kindFormat            = "format"
	kindCapabilityMissing = "capability_missing"
	kindPlayback          = "playback"
	kindIllegalTransition = "illegal_transition"
	kindUnplayable        = "unplayable"
	kindNoSuchTune        = "no_such_tune"
	kindSuperseded        = "superseded"
	kindNoNotation        = "no_notation"
	kindExport            = "export"
	kindTimeout           = "timeout"
	kindCanceled          = "canceled"
	kindInternal          = "internal"

	// statusClientClosedRequest is reported when the caller went away mid-request
	statusClientClosedRequest = 499
)
