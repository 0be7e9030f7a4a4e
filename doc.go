// Package main provides the go-sectrust CLI tool for macOS code
// signature verification.
//
// For the library API, see the sectrust subpackage:
//
//	import "github.com/aluedeke/go-sectrust/pkg/sectrust"
//
// # Installation
//
// Install the CLI:
//
//	go install github.com/aluedeke/go-sectrust@latest
//
// The check command requires macOS; the info command works on any
// platform.
package main
