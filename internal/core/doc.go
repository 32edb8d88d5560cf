// Package core holds the data model shared by every stage of the log
// analysis pipeline, along with its error taxonomy.
//
// The pipeline moves strictly forward:
//
//	RawUpload -> Table -> SchemaLabel -> AnalysisRequest -> NormalizedResult
//
// Each stage lives in its own package (ingest, schema, analysis, store,
// report) and only exchanges the types defined here. The upload package
// sequences the stages.
//
// # Errors
//
// Failures are reported as [*Error] values carrying a [Kind]. Callers match
// kinds with errors.Is against the sentinels ([ErrValidation], [ErrDecode],
// [ErrPayload], [ErrSubmission], [ErrRender]) and turn any error into a
// user-facing [Notice] with [MapError].
package core
