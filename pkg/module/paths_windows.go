//go:build windows

package module

// DefaultSearchPaths are the directories searched for images of modules
// referenced by base name.
var DefaultSearchPaths = []string{
	".",
	`C:\Windows\System32`,
	`C:\Windows\SysWOW64`,
}
