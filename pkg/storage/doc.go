// Package storage manages the output root of the gallery downloader.
//
// The storage package handles:
//   - Creating the output root, refusing an existing one unless resuming
//   - Writing archives through a ".part" file that is renamed when complete
//   - Atomic rewrites of normalized images using temporary files and rename
//   - Listing the flat set of images below the root
//
// All access goes through an afero.Fs so tests can run against an in-memory
// filesystem.
//
// Usage:
//
//	manager := storage.NewManager("./EarthAsArt")
//	if _, err := manager.CreateRoot(false); err != nil {
//	    log.Fatal(err) // already_exists when the root is left from a previous run
//	}
//
//	images, err := manager.ListImages()
package storage
