// Package pool provides reusable copy buffers for streaming transfers.
// Pooling the buffers keeps a large concurrent sync from allocating one
// per file.
package pool
