// Package microsd manages an SPI-attached MicroSD card through an
// external FAT filesystem driver. It contributes typed results instead
// of error codes scattered through call sites, normalized paths, a
// bounded mount retry state machine and exclusively owned card and
// file handles; all block I/O, FAT bookkeeping and the SD command
// protocol stay in the driver behind the fatfs and hal interfaces.
package microsd
