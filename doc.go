// Package s3lync keeps local paths and S3 locations consistent through
// hash-aware synchronization.
//
// A Client holds the AWS connection; an S3Object binds one s3:// URI to
// one local path and exposes download/upload operations that diff the two
// sides, move only what differs, and optionally mirror deletions.
//
// Basic usage:
//
//	client, err := s3lync.New(s3lync.WithRegion("us-west-2"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	obj, err := client.Object("s3://my-bucket/dataset/",
//	    s3lync.WithLocalPath("/data/dataset"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	result, err := obj.Download(ctx, s3lync.WithSyncMirror())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("transferred %d files\n", result.FilesTransferred)
//
// Synchronization compares the two sides by MD5 digest where possible and
// moves only files that are missing or differ. Objects uploaded through
// the multipart API carry a composite checksum that cannot be recomputed
// locally; those entries fall back to a size comparison.
package s3lync
