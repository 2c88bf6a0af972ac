// Package services holds cross-cutting plumbing shared by the processing
// stages: the failure taxonomy used to classify pipeline errors and the
// context keys that thread podcast, episode, stage, and request identifiers
// through logs and error messages.
package services
