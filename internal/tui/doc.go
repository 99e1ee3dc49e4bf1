// Package tui implements the terminal address-space map.
//
// Each terminal cell is one pixel wide and two tall, so the camera binds to
// (cols, 2*rows) and square blocks stay square on screen.
//
// Component architecture:
//
//	model.go    root model, message routing, Init/Update
//	theme.go    chrome colors and styles
//	header.go   top bar, status line and key hints
//	mapview.go  leaf painting into the cell grid
//	detail.go   hovered block pane
//	setlist.go  prefix set picker
//	helpers.go  truncation and clamping
package tui
