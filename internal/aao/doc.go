// Package aao resolves cases from the Ace Attorney Online site.
//
// The site has no JSON API; case data and site configuration are embedded
// as JavaScript variables inside PHP-rendered scripts. The client extracts
// those variables by regex, unquotes the embedded JSON, and decodes it into
// the case manifest. Player engine sources are fetched from the engine
// repository pinned to a branch, tag, or commit.
package aao
