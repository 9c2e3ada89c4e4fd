// Package generation turns captured source text into delivered text via an
// external AI service.
//
// A generation runs in three steps:
//
//  1. BuildPrompt renders the source text and a Settings snapshot into a
//     deterministic system/user prompt pair.
//  2. A Generator (OpenAIGenerator in production) produces the answer, bounded
//     by a timeout. Failures are classified as ErrRateLimited,
//     ErrServiceUnavailable, ErrMalformedResponse or ErrTimeout and are never
//     retried automatically.
//  3. When the humanizer is enabled, a Humanizer rewrites the answer. A
//     humanizer failure falls back to the original answer.
//
// With learning mode on, the question/answer pair is recorded in a
// LearningStore in the background; that write never affects the result.
//
// Settings are read once per trigger and passed in explicitly, so a change to
// the settings file mid-generation does not affect the running request.
package generation
