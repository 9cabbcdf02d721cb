package cmd

import "github.com/fatih/color"

// Color helpers modeled on the pack's own CLI color palette
// convention: one *color.Color per role, plus a Sprint-shaped
// function for inline use in Printf-style output.
var (
	successC = color.New(color.FgGreen)
	failureC = color.New(color.FgRed)
	faintC   = color.New(color.Faint)
)

var (
	success = successC.Sprint
	failure = failureC.Sprint
	faint   = faintC.Sprint
)
