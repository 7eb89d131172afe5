package types

import "errors"

var (
	// ErrResolutionUnavailable means the geocoding collaborator was
	// unreachable or returned no match. Callers fall back to treating the
	// raw input as already canonical instead of failing the request.
	ErrResolutionUnavailable = errors.New("location resolution unavailable")

	// ErrInvalidGenerativeOutput means an LLM response did not parse as the
	// required structure. Planning downgrades to the deterministic template;
	// narrative generation has no safe fallback and fails hard.
	ErrInvalidGenerativeOutput = errors.New("generative output failed validation")

	// ErrAllCategoriesFailed aggregates a request where every category
	// search failed; returned instead of four redundant errors.
	ErrAllCategoriesFailed = errors.New("all category searches failed")

	// ErrPromptNotFound means a named prompt template is missing from the
	// prompts table.
	ErrPromptNotFound = errors.New("prompt template not found")
)
