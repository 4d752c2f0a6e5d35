// Package cmd defines the companyloc-ingest command line: the weekly
// ingest run and the source listing.
package cmd
