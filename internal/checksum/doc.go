// Package checksum verifies downloaded artifacts against declared digests.
//
// It supports the common cryptographic digest family (md5 through sha512),
// distinguishes unknown-algorithm configuration errors from verification
// mismatches, and surfaces an advisory when a legacy algorithm is used.
package checksum
