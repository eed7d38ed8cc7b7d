// Package pipeline runs the capture-to-label state machine for a
// hearing. Every transition is persisted before the stage collaborator
// is invoked, so a crash leaves resumable state and collaborators are
// at-least-once. Humans gate entry: nothing is captured until
// StartCapture is called for a discovered or failed hearing.
package pipeline
