// Package audioedit removes detected ad ranges from episode audio. Each
// removed block is replaced with a short tone so listeners can hear where
// a cut happened.
package audioedit
