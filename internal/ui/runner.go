package ui

import (
	"fmt"
	"io"
	"os"
	"time"
)

// RunnerConfig describes a multi-step command
type RunnerConfig struct {
	Title     string
	Command   string
	Params    []Param
	StepNames []string
	// Troubleshooting builds the tips shown on failure (optional)
	Troubleshooting func(err error) []string
	Output          io.Writer // default: os.Stdout
}

// Runner prints a header, step lines as the operation reports them, and a
// final result box.
type Runner struct {
	config   RunnerConfig
	header   *Header
	progress *Progress
	out      io.Writer
	width    int
	now      func() time.Time
}

// NewRunner creates a runner sized to the terminal
func NewRunner(config RunnerConfig) *Runner {
	if config.Output == nil {
		config.Output = os.Stdout
	}
	width := GetTerminalWidth()
	return &Runner{
		config:   config,
		header:   NewHeader(config.Title, config.Command, config.Params...).SetWidth(width),
		progress: NewProgress(config.StepNames...).SetWidth(width),
		out:      config.Output,
		width:    width,
		now:      time.Now,
	}
}

// Operation is the work a Runner reports on. It returns the details shown
// in the success box.
type Operation func(onStep StepCallback) ([]Param, error)

// Run executes op and prints its outcome. It returns op's error.
func (r *Runner) Run(op Operation) error {
	start := r.now()

	fmt.Fprintln(r.out, r.header.Render())
	fmt.Fprintln(r.out)

	details, err := op(r.onStep)
	duration := r.now().Sub(start).Round(time.Millisecond)

	fmt.Fprintln(r.out)
	if err != nil {
		var tips []string
		if r.config.Troubleshooting != nil {
			tips = r.config.Troubleshooting(err)
		}
		res := NewFailureResult(r.config.Title+" failed", err, tips).SetWidth(r.width)
		fmt.Fprintln(r.out, res.Render())
		return err
	}

	res := NewSuccessResult(r.config.Title+" complete", details...).SetWidth(r.width)
	res.AddDetail("Duration", duration.String())
	fmt.Fprintln(r.out, res.Render())
	return nil
}

// Progress returns the step tracker
func (r *Runner) Progress() *Progress {
	return r.progress
}

func (r *Runner) onStep(number int, name string, status StepStatus, message string) {
	if number < 1 || number > r.progress.Total() {
		return
	}
	if name != "" {
		r.progress.Steps[number-1].Name = name
	}
	r.progress.UpdateStep(number, status, message)

	line := r.progress.RenderStep(r.progress.Steps[number-1])
	if status == StepRunning {
		// Overwritten by the final state of the step
		fmt.Fprint(r.out, line+"\r")
		return
	}
	fmt.Fprintln(r.out, line)
}

// PrintHeader prints a command header to stdout
func PrintHeader(title, command string, params ...Param) {
	fmt.Println(NewHeader(title, command, params...).Render())
	fmt.Println()
}

// PrintSuccess prints a success box to stdout
func PrintSuccess(title string, details ...Param) {
	fmt.Println(NewSuccessResult(title, details...).Render())
}

// PrintFailure prints a failure box to stdout
func PrintFailure(title string, err error, troubleshooting []string) {
	fmt.Println(NewFailureResult(title, err, troubleshooting).Render())
}

// PrintWarning prints a warning box to stdout
func PrintWarning(title string, details ...Param) {
	fmt.Println(NewWarningResult(title, details...).Render())
}
