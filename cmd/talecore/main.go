// Talecore runs narrative games whose turns are written by a language model
// and checked against the game's rules before they touch state.
// Usage: talecore [play] [--game <dir>] [--replay <file>] [--plain] [--trace]
package main

func main() {
	Execute()
}
