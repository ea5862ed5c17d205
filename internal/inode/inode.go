/*
Package inode is the opaque inode/file façade spec.md §6 names
(read_inode, namei, idup, iput, file_close, file_dup) and §1 lists as
explicitly out of scope ("the on-disk filesystem and block cache").
The core never looks inside an Inode or File; it only calls the
methods package proc and package vm declare against them (proc.File's
Dup/Close, vm.Inode's ReadAt). This package supplies the one
concrete implementation this repository ships: an in-memory blob
store, enough to drive LoadUVM and Fork's file-table duplication in
tests without a real disk.

Grounded on emu/device/device.go's shape: a small method-set
interface for an external, intentionally-opaque collaborator, plus a
package-level registry the rest of the kernel looks entries up in by
name/number rather than holding direct references.
*/
package inode

import (
	"errors"
	"io"
	"sync"

	"github.com/patha454/xv6-rpi2-port/internal/proc"
)

// Inode is a named, immutable byte blob — this repository's stand-in
// for a filesystem inode. It satisfies vm.Inode (ReadAt) without
// vm importing this package: vm only needs the method, not the type.
type Inode struct {
	name string
	data []byte

	mu   sync.Mutex
	refs int
}

// ReadAt implements io.ReaderAt-like semantics for vm.LoadUVM: reads
// into dst starting at off, returning the number of bytes copied.
// A read that runs past the end of the blob is a short read that
// returns io.EOF with the bytes it did copy, matching io.ReaderAt's
// convention; an offset beyond the end of the blob is an error.
func (ip *Inode) ReadAt(dst []byte, off int64) (int, error) {
	if off < 0 || off > int64(len(ip.data)) {
		return 0, errors.New("inode: read offset out of range")
	}
	n := copy(dst, ip.data[off:])
	if n < len(dst) {
		return n, io.EOF
	}
	return n, nil
}

// registry is the in-memory directory namei searches: name -> inode.
var (
	mu       sync.Mutex
	registry = map[string]*Inode{}
)

// Register installs a named blob, for boot code to seed the linked-in
// initcode and any other built-in files before namei can find them.
func Register(name string, data []byte) *Inode {
	ip := &Inode{name: name, data: data, refs: 1}
	mu.Lock()
	registry[name] = ip
	mu.Unlock()
	return ip
}

// Namei resolves a path to an inode with its reference count already
// bumped once, mirroring namei()'s documented contract that the
// caller owns one reference on success.
func Namei(path string) (*Inode, bool) {
	mu.Lock()
	ip, ok := registry[path]
	mu.Unlock()
	if !ok {
		return nil, false
	}
	return Idup(ip), true
}

// Idup increments ip's reference count and returns it, matching
// idup()'s "bump refcount, return same pointer" contract.
func Idup(ip *Inode) *Inode {
	ip.mu.Lock()
	ip.refs++
	ip.mu.Unlock()
	return ip
}

// Iput drops one reference to ip. The in-memory registry never frees
// a blob's storage on refs hitting zero — there is no block cache to
// evict from — but the count itself is still tracked so tests can
// assert every Idup/Namei is matched by an Iput, the same discipline
// a real block-cache-backed iput() would enforce.
func Iput(ip *Inode) {
	ip.mu.Lock()
	ip.refs--
	ip.mu.Unlock()
}

// Refs reports ip's current reference count, for tests.
func (ip *Inode) Refs() int {
	ip.mu.Lock()
	defer ip.mu.Unlock()
	return ip.refs
}

// File is an open file-table entry: an inode plus the read/write
// offset a process's file descriptor tracks. It implements proc.File
// (Dup/Close) without proc importing this package.
type File struct {
	ip       *Inode
	readable bool
	writable bool
	off      int64
}

// Open creates a File over ip with the given access mode, taking one
// reference on ip (released by Close).
func Open(ip *Inode, readable, writable bool) *File {
	Idup(ip)
	return &File{ip: ip, readable: readable, writable: writable}
}

// Dup implements proc.File: file_dup bumps the inode's refcount and
// returns a new File at offset 0, the same "each descriptor gets its
// own independent offset" semantics real xv6's struct file dup uses —
// Dup deliberately does not share f.off with the returned copy.
func (f *File) Dup() proc.File {
	return Open(f.ip, f.readable, f.writable)
}

// Read copies up to len(dst) bytes from the file's current offset,
// advancing it.
func (f *File) Read(dst []byte) (int, error) {
	if !f.readable {
		return 0, errors.New("inode: file not open for reading")
	}
	n, err := f.ip.ReadAt(dst, f.off)
	f.off += int64(n)
	if err == io.EOF {
		err = nil
	}
	return n, err
}

// Close implements proc.File: file_close drops the inode reference
// once the last descriptor referencing it is gone. This hosted model
// has no refcounted File struct to free, only the Inode beneath it,
// so Close always releases exactly one Inode reference.
func (f *File) Close() {
	Iput(f.ip)
}
