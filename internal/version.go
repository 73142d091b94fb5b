// Package internal holds values shared by the keywitness executables.
package internal

// Version is the release version of the keywitness executables.
const Version = "0.1.0"
