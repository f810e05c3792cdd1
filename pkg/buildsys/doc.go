// Package buildsys implements a small task runner based on Starlark for the
// task declarations and mvdan.cc/sh for the shell runtime.
// It replaces the project Makefile with a portable system that works the same
// on every platform the Python toolchain supports.
package buildsys
