// Package archive moves finished conversation files into each sender's
// All-Media directory, optionally mirrors delivered outputs to Azure blob
// storage, and removes abandoned task directories.
package archive
