// Package capture defines the outcome model and collaborator contracts shared by
// the screenshot capture pipeline.
package capture
