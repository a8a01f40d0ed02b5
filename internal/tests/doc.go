// Package tests holds the integration test suite for the editorial
// package. It lives under internal/ so external projects cannot import
// it.
//
// The suite runs the engine against an in-memory sqlite store:
//   - stage transitions and their derived tasks
//   - revision note blocking and resolution
//   - publish and unpublish side effects
//   - authorization denials
//   - concurrent transition conflicts
//   - audit trail queries
//   - change event delivery
//
// Run from the repository root:
//
//	go test ./...
package tests
