// Package fs provides filesystem abstractions for testability and fault injection.
//
// The package defines two key interfaces:
//
//   - [File]: an open file addressed by offset (ReadAt/WriteAt), with sync
//   - [FileSystem]: the directory-level operations block devices need
//
// # Implementations
//
//   - [Default]: the local file system through package os
//   - [FaultyFS]: Test utility for fault injection (failed reads, failed or
//     short writes, failed syncs)
//
// # Usage
//
// Production code uses fs.Default:
//
//	file, err := fs.Default.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
//
// Tests can inject [FaultyFS] to simulate failures:
//
//	ffs := fs.NewFaultyFS(nil)
//	ffs.AddRule("dev1", fs.Fault{FailAfterBytes: 1024})
//	// inject ffs into the component under test
//
// # Design Notes
//
// This package does not take context.Context parameters. Local file
// operations are not interruptible at the syscall level; callers check their
// context before issuing them.
package fs
