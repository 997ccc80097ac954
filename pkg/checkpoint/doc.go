// Package checkpoint records which archives of an acquisition run have been
// extracted, so an interrupted run can continue into the same output root.
//
// One checkpoint file exists per output root. Checkpoints are stored in
// platform-specific data directories:
//   - Linux: ~/.local/share/eaafetch/checkpoints/
//   - macOS: ~/Library/Application Support/eaafetch/checkpoints/
//   - Windows: %APPDATA%/eaafetch/checkpoints/
//
// The checkpoint files are saved atomically and carry a format version.
package checkpoint
