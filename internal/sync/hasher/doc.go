// Package hasher computes content digests for local files and decides
// whether a remote integrity tag can be compared against one.
//
// S3 ETags are plain MD5 digests only for single-part uploads; multipart
// objects carry a composite tag ("<digest>-<parts>") that is not a digest
// of the object's bytes and must never be equality-compared.
package hasher
