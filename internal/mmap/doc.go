// Package mmap provides read-only memory-mapped file access.
//
//	m, err := mmap.Open("run042.hits")
//	if err != nil { ... }
//	defer m.Close()
//	hdr := m.Data[:64]
//
// On Unix the file is mapped with mmap(2). Elsewhere the file is read into
// memory, which keeps the API identical at the cost of a copy.
package mmap
