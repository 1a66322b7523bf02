//go:build !windows

package module

// DefaultSearchPaths are the directories searched for images of modules
// referenced by base name.
var DefaultSearchPaths = []string{
	".",
	"/lib",
	"/lib64",
	"/usr/lib",
	"/usr/lib64",
	"/usr/local/lib",
	"/lib/x86_64-linux-gnu",
	"/usr/lib/x86_64-linux-gnu",
	"/lib/aarch64-linux-gnu",
	"/usr/lib/aarch64-linux-gnu",
}
