// Package xplcli holds the small set of flag helpers shared by the
// gxpl command-line tools (spec.md §6 "CLI surfaces").
package xplcli

import "flag"

// countFlag implements flag.Value and flag.boolFlag so repeated use of
// a bare switch (e.g. "-d -d -d") increments a counter instead of
// requiring an explicit value each time.
type countFlag struct{ n *int }

func (c countFlag) String() string { return "" }

func (c countFlag) Set(string) error {
	*c.n++
	return nil
}

func (c countFlag) IsBoolFlag() bool { return true }

// DebugCount registers a repeatable flag under name (e.g. "d") and under
// "debug" (spec.md §6) on fs, both feeding one counter, and returns a
// pointer to the number of times either was given.
func DebugCount(fs *flag.FlagSet, name, usage string) *int {
	n := new(int)
	fs.Var(countFlag{n: n}, name, usage)
	if name != "debug" {
		fs.Var(countFlag{n: n}, "debug", usage)
	}
	return n
}
