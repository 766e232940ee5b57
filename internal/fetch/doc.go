// Package fetch downloads asset graphs with bounded concurrency. Every
// network acquisition takes a token from a run-global budget, failures
// are retried with exponential backoff when transient, and successful
// payloads are content-sniffed so local filenames carry a usable
// extension. Watermarked image hosts get their banner cropped in-flight.
package fetch
