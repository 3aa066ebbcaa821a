// SPDX-License-Identifier: MPL-2.0

// Package protocol defines the contract between the bridge and the external
// optimizer script: the positional argument vector, the environment
// variables, and the JSON result document the script may write.
//
// The argument vector is
//
//	[scriptPath, phase, profile, dryRun, maxChanges, includeCsv, excludeCsv, useSelection, categoriesCsv]
//
// with booleans rendered as "true"/"false" and list values comma-joined.
// The result document is a JSON object with any of message, assetsProcessed,
// assetsModified and success; every field is optional and fields of the
// wrong type are ignored.
package protocol
