// Package ui renders terminal output for the fowlink-cfg CLI.
//
// Components follow a "print and move on" pattern built on Lipgloss:
//
//   - Header: command banner with ordered parameters
//   - Progress: step list with a bubbles progress bar
//   - Result: success, failure and warning boxes
//   - Runner: header, step lines and result for a multi-step operation
//
// The one interactive piece is WatchModel, a Bubble Tea program that polls
// a device's portal status until it connects or the user presses q.
//
//	r := ui.NewRunner(ui.RunnerConfig{
//	    Title:     "Provision Device",
//	    Command:   "fowlink-cfg provision",
//	    StepNames: []string{"Reach portal", "Submit credentials", "Wait for connection", "Exit setup"},
//	})
//	err := r.Run(func(onStep ui.StepCallback) ([]ui.Param, error) {
//	    onStep(1, "", ui.StepRunning, "")
//	    ...
//	})
//
// Logging stays silent unless FOWLINK_LOG_LEVEL is set, so the styled
// output is not interleaved with log lines.
package ui
