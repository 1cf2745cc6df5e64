// Package viz renders runs in the terminal.
//
//   - [Canvas]: Braille canvas that draws trajectories and punctures in
//     data coordinates
//   - [Camera]: orthographic rotation used to project 3-D field lines
//   - [ProgressModel]: Bubble Tea view fed by per-round coordinator progress
//   - [Picker]: preset chooser for `flowline run --pick`
//   - Themes and lipgloss styles for run summaries
//
// # Key Bindings
//
//	q, ctrl+c - cancel the run (progress) or quit (picker)
//	j/k       - move (picker)
//	enter     - choose (picker)
package viz
