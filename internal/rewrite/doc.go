// Package rewrite repoints every asset reference in a resolved case and
// its player template at the fetched local copies, producing a
// self-contained HTML document. Case data references are assigned
// through JSON pointers; document references are replaced with the same
// patterns that found them.
package rewrite
