package orchestrator

// Structured payloads carried on RunEvent.Payload. Defined as named types
// so the orchestrator writes them with field names rather than building
// JSON by hand; the repository round-trips them as opaque JSON and
// consumers may decode them the same way.
type jobKeyPayload struct {
	JobKey string `json:"jobKey"`
}

type policyPayload struct {
	Policy string `json:"policy"`
}

type workerPayload struct {
	WorkerID string `json:"workerId"`
}

type executionResultPayload struct {
	WorkerID string `json:"workerId"`
	Summary  string `json:"summary"`
}
