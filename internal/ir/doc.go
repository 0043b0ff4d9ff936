// Package ir provides the foundational types shared by every planstate package.
//
// This package contains identities, the closed tag set carried by
// placeholders, wire records, and the canonical JSON encoding used for
// transport and content digests. All other internal packages import ir;
// ir imports nothing internal.
//
// Key design constraints:
//   - Placeholder tags are a closed bit-flag set plus one sequence index
//   - Wire records use snake_case JSON tags
//   - Canonical JSON is the only encoding used for digests
package ir
