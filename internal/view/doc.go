// Package view draws the thinker list of a running scheduler on a terminal.
//
// A Frame is a copy of what the scheduler looked like after one tick. Draw
// renders it on any Canvas; tcell screens satisfy Canvas, and tests use
// tcell.NewSimulationScreen.
package view
