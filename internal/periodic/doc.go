// Package periodic provides a cancellable repeating task with an adjustable
// interval. The scheduler and the processed-file watch loop are both built on
// it.
package periodic
