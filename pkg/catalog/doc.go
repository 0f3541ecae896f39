// Package catalog holds the role catalog: the registry of known permission
// categories and actions with their sensitivity, and the roles with their
// hierarchy levels and permission matrices.
//
// The catalog is loaded from YAML (a built-in clinic catalog is embedded)
// and is safe for concurrent use. Reads see a consistent snapshot; Replace
// swaps the whole definition atomically, which is what the file watcher
// does on reload.
//
// Every matrix is validated against the registry when it is written, so a
// typo in a category or action name is rejected instead of silently denying
// or allowing.
package catalog
