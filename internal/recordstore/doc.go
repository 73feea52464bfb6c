// Package recordstore is the HTTP client for the remote record store that
// owns document-processing records.
//
// The daemon only reads pending records and marks them completed; schema
// setup, health probing, stats and diagnostic inserts support the management
// surface. Failures surface as *ConnectivityError, *FetchError or
// *UpdateError, each tagged with a services marker.
package recordstore
