// Package archive reads and writes comic book containers.
//
// Each container format has an Adapter selected by Type. CBZ is read and
// written with archive/zip; CBR and CB7 are read-only and decoded with
// rardecode and sevenzip respectively. Pages are the image entries of an
// archive in natural sort order.
package archive
