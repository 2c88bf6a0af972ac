// Package adscan classifies transcript spans as advertisements using an
// LLM and normalizes the detected ranges for the audio editor.
package adscan
