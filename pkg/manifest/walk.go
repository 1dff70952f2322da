package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Walk enumerates root's contents into a Manifest. Entries are returned in
// lexicographic path order, so every non-empty directory precedes its
// descendants (a directory's path is a prefix of theirs). The depth-first
// walk alone does not give that order ("a/b" would precede "a-c"), so the
// entries are sorted by path once the walk completes. Paths excluded by
// matcher (which may be nil) are omitted entirely, including their
// descendants.
func Walk(root string, matcher *ExcludeMatcher) (Manifest, error) {
	var manifest Manifest
	if err := walkRecursive(root, "", matcher, &manifest); err != nil {
		return Manifest{}, err
	}
	sort.Slice(manifest.Entries, func(i, j int) bool {
		return manifest.Entries[i].Path < manifest.Entries[j].Path
	})
	return manifest, nil
}

func walkRecursive(root, relativePath string, matcher *ExcludeMatcher, manifest *Manifest) error {
	absolutePath := root
	if relativePath != "" {
		absolutePath = filepath.Join(root, relativePath)
	}

	entries, err := os.ReadDir(absolutePath)
	if err != nil {
		return fmt.Errorf("unable to read directory %q: %w", absolutePath, err)
	}

	for _, entry := range entries {
		childRelative := entry.Name()
		if relativePath != "" {
			childRelative = relativePath + "/" + entry.Name()
		}

		if matcher != nil && matcher.Match(childRelative) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			return fmt.Errorf("unable to stat %q: %w", childRelative, err)
		}

		switch {
		case info.Mode()&os.ModeSymlink != 0:
			target, err := os.Readlink(filepath.Join(absolutePath, entry.Name()))
			if err != nil {
				return fmt.Errorf("unable to read symlink %q: %w", childRelative, err)
			}
			manifest.Entries = append(manifest.Entries, FileEntry{
				Path:          childRelative,
				Kind:          KindSymlink,
				ModTimeNanos:  info.ModTime().UnixNano(),
				Mode:          uint32(info.Mode().Perm()),
				SymlinkTarget: target,
			})
		case info.IsDir():
			manifest.Entries = append(manifest.Entries, FileEntry{
				Path:         childRelative,
				Kind:         KindDirectory,
				ModTimeNanos: info.ModTime().UnixNano(),
				Mode:         uint32(info.Mode().Perm()),
			})
			if err := walkRecursive(root, childRelative, matcher, manifest); err != nil {
				return err
			}
		default:
			manifest.Entries = append(manifest.Entries, FileEntry{
				Path:         childRelative,
				Kind:         KindRegular,
				Size:         uint64(info.Size()),
				ModTimeNanos: info.ModTime().UnixNano(),
				Mode:         uint32(info.Mode().Perm()),
			})
		}
	}

	return nil
}
