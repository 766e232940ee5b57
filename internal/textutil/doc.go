// Package textutil provides text processing utilities for filename and
// path-segment sanitization.
//
// Case titles come from user-authored content and may contain any
// unicode text; the helpers here fold and strip them into names that
// are safe on every filesystem the output tree may land on.
package textutil
