// Package assetgraph enumerates every remote asset a case needs to work
// offline. It walks the structured case sections (profiles, evidence,
// places, popups, music, sounds) plus the engine defaults the case
// actually uses, and scans the player documents for referenced files.
// The result is a deduplicated graph keyed by canonical URL, with every
// occurrence site recorded so the rewriter can point them at local copies.
package assetgraph
