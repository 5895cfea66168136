// Package badgehub provides the revision/publish engine of a hosted
// catalogue for badge applications, with pluggable repository and blob
// storage backends.
//
// Every project has exactly one mutable draft version at a time; a
// publish freezes that draft into an immutable numbered revision and
// atomically opens a new draft that inherits the published metadata and
// file set. File bytes live in a content-addressed store keyed by SHA-256
// digest, so identical content is shared between revisions.
//
// The package exposes a single Service interface that orchestrates
// project lifecycle, draft mutation, publishing, version resolution and
// catalogue listings. Implementations of repositories (memory, Postgres)
// and blob stores (memory, filesystem, S3) are provided under
// subpackages.
package badgehub
