package model

import "errors"

// Sentinel kinds for pipeline errors. Callers match them with errors.Is.
var (
	// ErrSchema reports missing or wrongly typed input fields.
	ErrSchema = errors.New("schema error")
	// ErrDataIntegrity reports counts that cannot be true.
	ErrDataIntegrity = errors.New("data integrity error")
	// ErrConfig reports a missing or invalid payoff/prior rule.
	ErrConfig = errors.New("config error")
	// ErrPayload reports a malformed sampler payload detected before sampling.
	ErrPayload = errors.New("payload error")
	// ErrSampler reports that the sampling backend could not run.
	ErrSampler = errors.New("sampler error")
)
