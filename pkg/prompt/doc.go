// Package prompt holds the terminal surface: the interactive parameter
// prompter and the banner and table renderers.
package prompt
